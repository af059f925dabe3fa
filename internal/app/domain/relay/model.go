// Package relay defines the request/fulfillment lifecycle domain for the
// relay mini-app: time-bounded requests posted by one user, claimed by a
// single counterparty, resolved to a terminal status, with read-time expiry.
package relay

import "time"

// RequestStatus is the lifecycle state of a relay request.
type RequestStatus string

const (
	RequestStatusOpen             RequestStatus = "open"
	RequestStatusClaimed          RequestStatus = "claimed"
	RequestStatusCompletedSuccess RequestStatus = "completed_success"
	RequestStatusCompletedFailure RequestStatus = "completed_failure"
	RequestStatusCancelled        RequestStatus = "cancelled"
	RequestStatusExpired          RequestStatus = "expired"
)

// FulfillmentStatus is the state of a claim against a request. It mirrors the
// request's terminal status once closed.
type FulfillmentStatus string

const (
	FulfillmentStatusActive           FulfillmentStatus = "active"
	FulfillmentStatusCompletedSuccess FulfillmentStatus = "completed_success"
	FulfillmentStatusCompletedFailure FulfillmentStatus = "completed_failure"
	FulfillmentStatusCancelled        FulfillmentStatus = "cancelled"
)

// DefaultTTL is the expiry horizon applied when a request is created or
// reposted without an explicit TTL.
const DefaultTTL = 14 * 24 * time.Hour

// MaxDescriptionLen bounds the request description.
const MaxDescriptionLen = 140

// Request is a time-bounded ask awaiting a single counterparty.
type Request struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Description string        `json:"description"`
	Status      RequestStatus `json:"status"`
	IsPublic    bool          `json:"is_public"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Fulfillment binds exactly one counterparty to a request.
type Fulfillment struct {
	ID        string            `json:"id"`
	RequestID string            `json:"request_id"`
	UserID    string            `json:"user_id"` // the fulfiller; set once, immutable
	Status    FulfillmentStatus `json:"status"`
	ClosedBy  string            `json:"closed_by,omitempty"`
	ClosedAt  time.Time         `json:"closed_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Message is one chat entry in a fulfillment's thread.
type Message struct {
	ID            string    `json:"id"`
	FulfillmentID string    `json:"fulfillment_id"`
	SenderID      string    `json:"sender_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsTerminal reports whether no further transition is legal from status.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompletedSuccess, RequestStatusCompletedFailure,
		RequestStatusCancelled, RequestStatusExpired:
		return true
	case RequestStatusOpen, RequestStatusClaimed:
		return false
	}
	return false
}

// IsTerminal reports whether the fulfillment has been closed.
func (s FulfillmentStatus) IsTerminal() bool {
	return s != FulfillmentStatusActive
}

// TerminalOutcome reports whether s is a legal close outcome.
func TerminalOutcome(s FulfillmentStatus) bool {
	switch s {
	case FulfillmentStatusCompletedSuccess, FulfillmentStatusCompletedFailure, FulfillmentStatusCancelled:
		return true
	}
	return false
}

// RequestStatusFor maps a close outcome onto the owning request's status.
func RequestStatusFor(outcome FulfillmentStatus) RequestStatus {
	switch outcome {
	case FulfillmentStatusCompletedSuccess:
		return RequestStatusCompletedSuccess
	case FulfillmentStatusCompletedFailure:
		return RequestStatusCompletedFailure
	case FulfillmentStatusCancelled:
		return RequestStatusCancelled
	}
	return RequestStatus(outcome)
}

// Expired reports whether the request's deadline has passed at now.
// Only open requests expire; terminal statuses keep their value.
func (r Request) Expired(now time.Time) bool {
	return r.Status == RequestStatusOpen && !now.Before(r.ExpiresAt)
}

// EffectiveStatus derives the status to present at read time. An open request
// past its deadline reads as expired regardless of what is stored.
func (r Request) EffectiveStatus(now time.Time) RequestStatus {
	if r.Expired(now) {
		return RequestStatusExpired
	}
	return r.Status
}

// CanClaim reports whether a claim is legal at now: the request must be open
// and unexpired. Self-claims are rejected separately as a permission issue.
func (r Request) CanClaim(now time.Time) bool {
	return r.Status == RequestStatusOpen && now.Before(r.ExpiresAt)
}

// Party reports whether userID is the requester side of the pair.
func (r Request) Party(userID string) bool {
	return r.UserID == userID
}
