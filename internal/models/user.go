package models

import "time"

type Role string

const (
	RoleUser       Role = "user"
	RoleAstrologer Role = "astrologer"
	RoleAdmin      Role = "admin"
)

type User struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	Role          Role      `db:"role"`
	WalletBalance float64   `db:"wallet_balance"`
	CreatedAt     time.Time `db:"created_at"`
}

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// Transaction is a wallet ledger entry.
type Transaction struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Amount      float64         `db:"amount"`
	Type        TransactionType `db:"type"`
	Description string          `db:"description"`
	Timestamp   time.Time       `db:"timestamp"`
}
