package models

import "time"

// DefaultRatePerMinute applies when an astrologer has not set a rate.
const DefaultRatePerMinute = 10.0

type Astrologer struct {
	ID          int64      `db:"id"`
	UserID      int64      `db:"user_id"`
	Name        string     `db:"name"`
	Email       string     `db:"email"`
	Phone       string     `db:"phone"`
	Experience  int        `db:"experience"`
	Specialties StringList `db:"specialties"`
	Languages   StringList `db:"languages"`
	Bio         string     `db:"bio"`

	Status             string  `db:"status"`
	VerificationStatus string  `db:"verification_status"`
	Rating             float64 `db:"rating"`
	TotalCalls         int     `db:"total_calls"`
	Earnings           float64 `db:"earnings"`
	Rate               float64 `db:"rate"`

	IsOnline       bool       `db:"is_online"`
	IsLive         bool       `db:"is_live"`
	LastOnlineTime *time.Time `db:"last_online_time"`
	IsBoosted      bool       `db:"is_boosted"`
	FollowersCount int        `db:"followers_count"`

	ApplicationDate time.Time `db:"application_date"`
}

// RatePerMinute returns the billing rate, falling back to the default.
func (a *Astrologer) RatePerMinute() float64 {
	if a == nil || a.Rate <= 0 {
		return DefaultRatePerMinute
	}
	return a.Rate
}
