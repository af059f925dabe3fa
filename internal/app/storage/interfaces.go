package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relaypoint/community_layer/internal/app/domain/announcement"
	"github.com/relaypoint/community_layer/internal/app/domain/profile"
	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/domain/user"
)

// Sentinel errors shared by all store implementations. Services translate
// them into the typed error taxonomy at the boundary.
var (
	// ErrNotFound indicates the row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a conditional write matched no row in the
	// expected state (lost transition race, duplicate unique key).
	ErrConflict = errors.New("conflicting state")
)

// RequestFilter narrows request listings. Zero value lists everything.
type RequestFilter struct {
	UserID     string // only requests owned by this user
	PublicOnly bool   // only is_public rows
	OpenOnly   bool   // only status=open with expires_at in the future
	Limit      int
	Offset     int
}

// UserStore persists platform users.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
}

// RequestStore persists relay requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req relay.Request) (relay.Request, error)
	// UpdateRequest rewrites description and visibility; lifecycle fields are
	// only changed through TransitionRequest and the claim/close operations.
	UpdateRequest(ctx context.Context, req relay.Request) (relay.Request, error)
	GetRequest(ctx context.Context, id string) (relay.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]relay.Request, error)
	// TransitionRequest flips status from -> to as a single conditional
	// write. A non-zero expiresAt also resets the deadline (repost). Returns
	// ErrConflict when the stored status no longer matches from.
	TransitionRequest(ctx context.Context, id string, from, to relay.RequestStatus, expiresAt time.Time) (relay.Request, error)
	// DeleteRequest hard-deletes the request and cascades to its
	// fulfillments and messages. Admin path only.
	DeleteRequest(ctx context.Context, id string) error
}

// FulfillmentStore persists claims and their resolution.
type FulfillmentStore interface {
	// ClaimRequest atomically flips an open, unexpired request to claimed
	// and creates the active fulfillment bound to fulfillerID. Returns
	// ErrConflict if the request is not claimable.
	ClaimRequest(ctx context.Context, requestID, fulfillerID string) (relay.Request, relay.Fulfillment, error)
	// CloseFulfillment atomically resolves an active fulfillment and its
	// request to the same terminal status. Returns ErrConflict if the
	// fulfillment is no longer active.
	CloseFulfillment(ctx context.Context, id, closedBy string, outcome relay.FulfillmentStatus) (relay.Fulfillment, relay.Request, error)
	GetFulfillment(ctx context.Context, id string) (relay.Fulfillment, error)
	ListFulfillmentsByUser(ctx context.Context, userID string) ([]relay.Fulfillment, error)
	ListFulfillments(ctx context.Context) ([]relay.Fulfillment, error)
}

// MessageStore persists fulfillment chat threads.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg relay.Message) (relay.Message, error)
	ListMessagesByFulfillment(ctx context.Context, fulfillmentID string) ([]relay.Message, error)
}

// ProfileStore persists relay profiles, one per user.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfileByUser(ctx context.Context, userID string) (profile.Profile, error)
	DeleteProfileByUser(ctx context.Context, userID string) error
}

// AnnouncementStore persists announcements.
type AnnouncementStore interface {
	CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error)
	UpdateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error)
	GetAnnouncement(ctx context.Context, id string) (announcement.Announcement, error)
	ListAnnouncements(ctx context.Context) ([]announcement.Announcement, error)
}
