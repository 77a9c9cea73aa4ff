package dtos

import (
	"time"

	"github.com/astroveda/consult/internal/models"
)

type WalletTransaction struct {
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type WalletBalanceResponse struct {
	UserID       models.ID           `json:"user_id"`
	Balance      float64             `json:"balance"`
	Currency     string              `json:"currency"`
	Transactions []WalletTransaction `json:"transactions"`
}

type AddFundsResponse struct {
	Message    string  `json:"message"`
	NewBalance float64 `json:"new_balance"`
}

// Error body returned by every failing endpoint
type ErrorResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}
