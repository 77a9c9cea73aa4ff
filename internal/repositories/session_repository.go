package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/models"
)

type SessionRepository interface {
	Create(ctx context.Context, params models.CreateSessionParams) (*models.Session, error)
	GetByID(ctx context.Context, id int64) (*models.Session, error)
	ListActiveForParticipant(ctx context.Context, userID int64) ([]models.Session, error)
	CountCompletedByUser(ctx context.Context, userID int64) (int, error)
	Complete(ctx context.Context, params models.EndSessionParams) (bool, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

// Create a new active session
func (r *sessionRepo) Create(ctx context.Context, params models.CreateSessionParams) (*models.Session, error) {
	const query = `
	INSERT INTO sessions (
		user_id,
		astrologer_id,
		start_time,
		status,
		type,
		is_free_trial
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING *
	`

	var session models.Session
	err := r.db.GetContext(ctx, &session, query,
		params.UserID,
		params.AstrologerID,
		params.StartTime,
		models.SessionStatusActive,
		params.Type,
		params.IsFreeTrial,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Get session by ID, nil when missing
func (r *sessionRepo) GetByID(ctx context.Context, id int64) (*models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Active sessions where the user is either the client or the astrologer
func (r *sessionRepo) ListActiveForParticipant(ctx context.Context, userID int64) ([]models.Session, error) {
	const query = `
	SELECT s.*
	FROM sessions s
	LEFT JOIN astrologers a ON a.id = s.astrologer_id
	WHERE s.status = $1 AND (s.user_id = $2 OR a.user_id = $2)
	ORDER BY s.start_time DESC
	`

	sessions := []models.Session{}
	if err := r.db.SelectContext(ctx, &sessions, query, models.SessionStatusActive, userID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Count completed sessions, used to decide free-trial eligibility
func (r *sessionRepo) CountCompletedByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND status = $2`,
		userID, models.SessionStatusCompleted,
	)
	return count, err
}

// Complete records the settlement of an active session. It reports false when
// the session was no longer active.
func (r *sessionRepo) Complete(ctx context.Context, params models.EndSessionParams) (bool, error) {
	const query = `
	UPDATE sessions
	SET
		end_time = $1,
		duration = $2,
		cost = $3,
		status = $4
	WHERE id = $5 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query,
		params.EndTime,
		params.DurationSeconds,
		params.Cost,
		models.SessionStatusCompleted,
		params.SessionID,
		models.SessionStatusActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
