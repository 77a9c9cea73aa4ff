package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error)
	WithTx(tx *sqlx.Tx) TransactionRepository
}

type transactionRepo struct {
	db database.DBTX
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) WithTx(tx *sqlx.Tx) TransactionRepository {
	return &transactionRepo{db: tx}
}

func (r *transactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	const query = `
	INSERT INTO transactions (user_id, amount, type, description, timestamp)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
	`

	return r.db.GetContext(ctx, &txn.ID, query,
		txn.UserID,
		txn.Amount,
		txn.Type,
		txn.Description,
		txn.Timestamp,
	)
}

func (r *transactionRepo) ListByUser(ctx context.Context, userID int64) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := r.db.SelectContext(ctx, &txns,
		`SELECT * FROM transactions WHERE user_id = $1 ORDER BY timestamp DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
