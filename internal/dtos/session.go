package dtos

import (
	"time"

	"github.com/astroveda/consult/internal/models"
)

// Start session request
type StartSessionRequest struct {
	AstrologerID models.ID `json:"astrologer_id" binding:"required"`
	Type         string    `json:"type" binding:"omitempty,oneof=call chat"`
}

// Public view of a user, embedded in session responses
type UserPublic struct {
	ID   models.ID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role,omitempty"`
}

// Astrologer profile as served to clients
type AstrologerProfile struct {
	ID          models.ID         `json:"id"`
	UserID      models.ID         `json:"user_id"`
	Name        string            `json:"name"`
	Experience  int               `json:"experience"`
	Specialties models.StringList `json:"specialties"`
	Languages   models.StringList `json:"languages"`
	Bio         string            `json:"bio"`
	Rating      float64           `json:"rating"`
	TotalCalls  int               `json:"total_calls"`
	Rate        float64           `json:"rate"`
	IsOnline    bool              `json:"is_online"`
	Status      string            `json:"status,omitempty"`
}

// Session response, shared by the API and its clients
type SessionResponse struct {
	ID           models.ID  `json:"id"`
	UserID       models.ID  `json:"user_id"`
	AstrologerID models.ID  `json:"astrologer_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Duration     int64      `json:"duration"`
	Cost         float64    `json:"cost"`
	Status       string     `json:"status"`
	Type         string     `json:"type"`
	IsFreeTrial  bool       `json:"is_free_trial"`

	User       *UserPublic        `json:"user,omitempty"`
	Astrologer *AstrologerProfile `json:"astrologer,omitempty"`
}

func (s *SessionResponse) IsActive() bool {
	return s.Status == string(models.SessionStatusActive)
}

// NewAstrologerProfile maps the stored astrologer onto its public profile.
func NewAstrologerProfile(a *models.Astrologer) *AstrologerProfile {
	if a == nil {
		return nil
	}
	return &AstrologerProfile{
		ID:          models.NewID(a.ID),
		UserID:      models.NewID(a.UserID),
		Name:        a.Name,
		Experience:  a.Experience,
		Specialties: a.Specialties,
		Languages:   a.Languages,
		Bio:         a.Bio,
		Rating:      a.Rating,
		TotalCalls:  a.TotalCalls,
		Rate:        a.RatePerMinute(),
		IsOnline:    a.IsOnline,
		Status:      a.Status,
	}
}

// NewSessionResponse maps a stored session and its participants.
func NewSessionResponse(s *models.Session, user *models.User, astrologer *models.Astrologer) *SessionResponse {
	resp := &SessionResponse{
		ID:           models.NewID(s.ID),
		UserID:       models.NewID(s.UserID),
		AstrologerID: models.NewID(s.AstrologerID),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Duration:     s.DurationSeconds,
		Cost:         s.Cost,
		Status:       string(s.Status),
		Type:         string(s.Type),
		IsFreeTrial:  s.IsFreeTrial,
		Astrologer:   NewAstrologerProfile(astrologer),
	}
	if user != nil {
		resp.User = &UserPublic{
			ID:   models.NewID(user.ID),
			Name: user.Name,
			Role: string(user.Role),
		}
	}
	return resp
}
