package models

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

type SessionType string

const (
	SessionTypeCall SessionType = "call"
	SessionTypeChat SessionType = "chat"
)

// Session is one consultation between a user and an astrologer.
type Session struct {
	ID           int64 `db:"id"`
	UserID       int64 `db:"user_id"`
	AstrologerID int64 `db:"astrologer_id"`

	StartTime time.Time  `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`

	DurationSeconds int64         `db:"duration"`
	Cost            float64       `db:"cost"`
	Status          SessionStatus `db:"status"`
	Type            SessionType   `db:"type"`
	IsFreeTrial     bool          `db:"is_free_trial"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// CreateSessionParams holds the columns set when a session starts.
type CreateSessionParams struct {
	UserID       int64
	AstrologerID int64
	Type         SessionType
	IsFreeTrial  bool
	StartTime    time.Time
}

// EndSessionParams holds the settlement written when a session ends.
type EndSessionParams struct {
	SessionID       int64
	EndTime         time.Time
	DurationSeconds int64
	Cost            float64
}
