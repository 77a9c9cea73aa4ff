package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/models"
)

type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	AdjustBalance(ctx context.Context, id int64, delta float64) (float64, error)
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AdjustBalance adds delta to the wallet and returns the new balance
func (r *userRepo) AdjustBalance(ctx context.Context, id int64, delta float64) (float64, error) {
	var balance float64
	err := r.db.GetContext(ctx, &balance,
		`UPDATE users SET wallet_balance = wallet_balance + $1 WHERE id = $2 RETURNING wallet_balance`,
		delta, id,
	)
	return balance, err
}
