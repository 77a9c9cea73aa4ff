package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/repositories"
)

const walletCurrency = "INR"

type WalletService struct {
	db              TxRunner
	userRepo        repositories.UserRepository
	transactionRepo repositories.TransactionRepository
	now             func() time.Time
}

func NewWalletService(
	db TxRunner,
	userRepo repositories.UserRepository,
	transactionRepo repositories.TransactionRepository,
) *WalletService {
	return &WalletService{
		db:              db,
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
		now:             time.Now,
	}
}

// Balance returns the authoritative wallet balance with its ledger.
func (s *WalletService) Balance(ctx context.Context, userID int64) (*dtos.WalletBalanceResponse, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}

	txns, err := s.transactionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	resp := &dtos.WalletBalanceResponse{
		UserID:       models.NewID(user.ID),
		Balance:      user.WalletBalance,
		Currency:     walletCurrency,
		Transactions: make([]dtos.WalletTransaction, 0, len(txns)),
	}
	for _, t := range txns {
		resp.Transactions = append(resp.Transactions, dtos.WalletTransaction{
			Amount:      t.Amount,
			Type:        string(t.Type),
			Description: t.Description,
			Timestamp:   t.Timestamp,
		})
	}
	return resp, nil
}

// AddFunds credits the wallet and records the credit.
func (s *WalletService) AddFunds(ctx context.Context, userID int64, amount float64) (*dtos.AddFundsResponse, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("amount", "must be greater than zero")
	}

	var balance float64
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		balance, err = s.userRepo.WithTx(tx).AdjustBalance(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("credit wallet: %w", err)
		}
		return s.transactionRepo.WithTx(tx).Create(ctx, &models.Transaction{
			UserID:      userID,
			Amount:      amount,
			Type:        models.TransactionCredit,
			Description: "Added funds",
			Timestamp:   s.now().UTC(),
		})
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Int64("userId", userID).Float64("amount", amount).Msg("wallet funded")

	return &dtos.AddFundsResponse{Message: "Funds added", NewBalance: balance}, nil
}
