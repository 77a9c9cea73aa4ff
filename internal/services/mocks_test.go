package services

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/repositories"
)

// inlineTx runs the transaction body without a database.
type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, params models.CreateSessionParams) (*models.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionRepo) ListActiveForParticipant(ctx context.Context, userID int64) ([]models.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Session), args.Error(1)
}

func (m *mockSessionRepo) CountCompletedByUser(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockSessionRepo) Complete(ctx context.Context, params models.EndSessionParams) (bool, error) {
	args := m.Called(ctx, params)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repositories.SessionRepository {
	return m
}

type mockAstrologerRepo struct {
	mock.Mock
}

func (m *mockAstrologerRepo) GetByID(ctx context.Context, id int64) (*models.Astrologer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Astrologer), args.Error(1)
}

func (m *mockAstrologerRepo) FindByUserID(ctx context.Context, userID int64) (*models.Astrologer, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Astrologer), args.Error(1)
}

func (m *mockAstrologerRepo) AddEarnings(ctx context.Context, id int64, amount float64) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *mockAstrologerRepo) WithTx(tx *sqlx.Tx) repositories.AstrologerRepository {
	return m
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) AdjustBalance(ctx context.Context, id int64, delta float64) (float64, error) {
	args := m.Called(ctx, id, delta)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repositories.UserRepository {
	return m
}

type mockTransactionRepo struct {
	mock.Mock
}

func (m *mockTransactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *mockTransactionRepo) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) WithTx(tx *sqlx.Tx) repositories.TransactionRepository {
	return m
}
