package profile

import "time"

// Profile is a user's relay mini-app profile, carrying the location shown
// alongside their public requests. One per user.
type Profile struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Country    string    `json:"country"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
