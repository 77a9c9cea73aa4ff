package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/billing"
	"github.com/astroveda/consult/internal/database"
	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/repositories"
)

// MinStartBalance is the wallet floor for starting a paid session.
const MinStartBalance = 10.0

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type SessionService struct {
	db              TxRunner
	sessionRepo     repositories.SessionRepository
	astrologerRepo  repositories.AstrologerRepository
	userRepo        repositories.UserRepository
	transactionRepo repositories.TransactionRepository
	now             func() time.Time
}

func NewSessionService(
	db TxRunner,
	sessionRepo repositories.SessionRepository,
	astrologerRepo repositories.AstrologerRepository,
	userRepo repositories.UserRepository,
	transactionRepo repositories.TransactionRepository,
) *SessionService {
	return &SessionService{
		db:              db,
		sessionRepo:     sessionRepo,
		astrologerRepo:  astrologerRepo,
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
		now:             time.Now,
	}
}

// Start opens a session between the caller and an astrologer. The first
// session a user ever completes is a free trial; otherwise the wallet must
// hold at least MinStartBalance.
func (s *SessionService) Start(ctx context.Context, userID int64, req dtos.StartSessionRequest) (*dtos.SessionResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.Unauthorized("user not found")
	}

	completed, err := s.sessionRepo.CountCompletedByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	isFreeTrial := completed == 0

	if !isFreeTrial && user.WalletBalance < MinStartBalance {
		log.Info().
			Int64("userId", userID).
			Float64("balance", user.WalletBalance).
			Msg("session start rejected: insufficient balance")
		return nil, apperrors.InsufficientBalance()
	}

	astrologerID, err := req.AstrologerID.Int64()
	if err != nil {
		return nil, apperrors.NotFound("Astrologer")
	}
	astrologer, err := s.astrologerRepo.GetByID(ctx, astrologerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if astrologer == nil {
		return nil, apperrors.NotFound("Astrologer")
	}

	sessionType := models.SessionType(req.Type)
	if sessionType == "" {
		sessionType = models.SessionTypeCall
	}

	session, err := s.sessionRepo.Create(ctx, models.CreateSessionParams{
		UserID:       userID,
		AstrologerID: astrologer.ID,
		Type:         sessionType,
		IsFreeTrial:  isFreeTrial,
		StartTime:    s.now().UTC(),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("sessionId", session.ID).
		Int64("userId", userID).
		Int64("astrologerId", astrologer.ID).
		Bool("freeTrial", isFreeTrial).
		Msg("session started")

	return dtos.NewSessionResponse(session, user, astrologer), nil
}

// Get returns a session to one of its participants.
func (s *SessionService) Get(ctx context.Context, userID int64, rawID string) (*dtos.SessionResponse, error) {
	session, err := s.loadSession(ctx, rawID)
	if err != nil {
		return nil, err
	}

	user, astrologer, err := s.participants(ctx, session)
	if err != nil {
		return nil, err
	}
	if !isParticipant(userID, session, astrologer) {
		return nil, apperrors.Forbidden("Not authorized to view this session")
	}

	return dtos.NewSessionResponse(session, user, astrologer), nil
}

// IsParticipant reports whether userID may join the session's signaling room.
func (s *SessionService) IsParticipant(ctx context.Context, userID int64, rawID string) (bool, error) {
	session, err := s.loadSession(ctx, rawID)
	if err != nil {
		return false, err
	}
	astrologer, err := s.astrologerRepo.GetByID(ctx, session.AstrologerID)
	if err != nil {
		return false, apperrors.Database(err)
	}
	return isParticipant(userID, session, astrologer), nil
}

// ListActive returns the caller's active sessions on either side.
func (s *SessionService) ListActive(ctx context.Context, userID int64) ([]dtos.SessionResponse, error) {
	sessions, err := s.sessionRepo.ListActiveForParticipant(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	out := make([]dtos.SessionResponse, 0, len(sessions))
	for i := range sessions {
		user, astrologer, err := s.participants(ctx, &sessions[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dtos.NewSessionResponse(&sessions[i], user, astrologer))
	}
	return out, nil
}

// End settles an active session: duration and cost are computed from the
// server clock, the user's wallet is debited and the astrologer credited in a
// single transaction. Ending a session that is no longer active returns it
// unchanged.
func (s *SessionService) End(ctx context.Context, userID int64, rawID string) (*dtos.SessionResponse, error) {
	session, err := s.loadSession(ctx, rawID)
	if err != nil {
		return nil, err
	}

	user, astrologer, err := s.participants(ctx, session)
	if err != nil {
		return nil, err
	}
	if !isParticipant(userID, session, astrologer) {
		return nil, apperrors.Forbidden("Not authorized to end this session")
	}
	if !session.IsActive() {
		return dtos.NewSessionResponse(session, user, astrologer), nil
	}

	endTime := s.now().UTC()
	duration := int64(endTime.Sub(session.StartTime).Seconds())
	if duration < 0 {
		duration = 0
	}
	cost := billing.Cost(duration, session.IsFreeTrial, astrologer.RatePerMinute())

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		settled, err := s.sessionRepo.WithTx(tx).Complete(ctx, models.EndSessionParams{
			SessionID:       session.ID,
			EndTime:         endTime,
			DurationSeconds: duration,
			Cost:            cost,
		})
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if !settled {
			// Someone else ended it between the read and the update.
			return nil
		}

		if cost > 0 {
			if _, err := s.userRepo.WithTx(tx).AdjustBalance(ctx, session.UserID, -cost); err != nil {
				return fmt.Errorf("debit wallet: %w", err)
			}
			err := s.transactionRepo.WithTx(tx).Create(ctx, &models.Transaction{
				UserID:      session.UserID,
				Amount:      cost,
				Type:        models.TransactionDebit,
				Description: debitDescription(astrologer, session.IsFreeTrial),
				Timestamp:   endTime,
			})
			if err != nil {
				return fmt.Errorf("record debit: %w", err)
			}
		}

		if astrologer == nil {
			return nil
		}
		if err := s.astrologerRepo.WithTx(tx).AddEarnings(ctx, astrologer.ID, cost); err != nil {
			return fmt.Errorf("credit astrologer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Int64("sessionId", session.ID).
		Int64("durationSeconds", duration).
		Float64("cost", cost).
		Msg("session ended")

	ended, err := s.sessionRepo.GetByID(ctx, session.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ended == nil {
		return nil, apperrors.NotFound("Session")
	}
	return dtos.NewSessionResponse(ended, user, astrologer), nil
}

func (s *SessionService) loadSession(ctx context.Context, rawID string) (*models.Session, error) {
	id, err := models.ID(rawID).Int64()
	if err != nil {
		return nil, apperrors.InvalidInput("session ID", "must be numeric")
	}
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}

func (s *SessionService) participants(ctx context.Context, session *models.Session) (*models.User, *models.Astrologer, error) {
	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	astrologer, err := s.astrologerRepo.GetByID(ctx, session.AstrologerID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	return user, astrologer, nil
}

func isParticipant(userID int64, session *models.Session, astrologer *models.Astrologer) bool {
	if session.UserID == userID {
		return true
	}
	return astrologer != nil && astrologer.UserID == userID
}

func debitDescription(astrologer *models.Astrologer, isFreeTrial bool) string {
	name := "Astrologer"
	if astrologer != nil && astrologer.Name != "" {
		name = astrologer.Name
	}
	kind := "Paid"
	if isFreeTrial {
		kind = "Free Trial + Paid"
	}
	return fmt.Sprintf("Session with %s (%s)", name, kind)
}
