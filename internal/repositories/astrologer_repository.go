package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/models"
)

type AstrologerRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Astrologer, error)
	FindByUserID(ctx context.Context, userID int64) (*models.Astrologer, error)
	AddEarnings(ctx context.Context, id int64, amount float64) error
	WithTx(tx *sqlx.Tx) AstrologerRepository
}

type astrologerRepo struct {
	db database.DBTX
}

func NewAstrologerRepository(db *sqlx.DB) AstrologerRepository {
	return &astrologerRepo{db: db}
}

func (r *astrologerRepo) WithTx(tx *sqlx.Tx) AstrologerRepository {
	return &astrologerRepo{db: tx}
}

func (r *astrologerRepo) GetByID(ctx context.Context, id int64) (*models.Astrologer, error) {
	return r.getOne(ctx, `SELECT * FROM astrologers WHERE id = $1`, id)
}

func (r *astrologerRepo) FindByUserID(ctx context.Context, userID int64) (*models.Astrologer, error) {
	return r.getOne(ctx, `SELECT * FROM astrologers WHERE user_id = $1 LIMIT 1`, userID)
}

// AddEarnings credits a finished call to the astrologer's stats
func (r *astrologerRepo) AddEarnings(ctx context.Context, id int64, amount float64) error {
	const query = `
	UPDATE astrologers
	SET earnings = earnings + $1, total_calls = total_calls + 1
	WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, amount, id)
	return err
}

func (r *astrologerRepo) getOne(ctx context.Context, query string, arg int64) (*models.Astrologer, error) {
	var astrologer models.Astrologer
	err := r.db.GetContext(ctx, &astrologer, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &astrologer, nil
}
