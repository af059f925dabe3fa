package announcement

import "time"

// Type classifies an announcement banner.
type Type string

const (
	TypeInfo        Type = "info"
	TypeWarning     Type = "warning"
	TypeMaintenance Type = "maintenance"
	TypeUpdate      Type = "update"
	TypePromotion   Type = "promotion"
)

// Announcement is an admin-managed banner shown inside the relay mini-app.
// Optional expiry; deactivation instead of deletion.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Type      Type      `json:"type"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether t is a known announcement type.
func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeWarning, TypeMaintenance, TypeUpdate, TypePromotion:
		return true
	}
	return false
}

// Visible reports whether the announcement should be shown at now.
func (a Announcement) Visible(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt.IsZero() || now.Before(a.ExpiresAt)
}
