// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/community_layer/internal/app/domain/announcement"
	"github.com/relaypoint/community_layer/internal/app/domain/profile"
	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/domain/user"
	"github.com/relaypoint/community_layer/internal/app/storage"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu             sync.RWMutex
	users          map[string]user.User
	requests       map[string]relay.Request
	fulfillments   map[string]relay.Fulfillment
	messages       map[string][]relay.Message
	profilesByUser map[string]profile.Profile
	announcements  map[string]announcement.Announcement
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.FulfillmentStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.AnnouncementStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:          make(map[string]user.User),
		requests:       make(map[string]relay.Request),
		fulfillments:   make(map[string]relay.Fulfillment),
		messages:       make(map[string][]relay.Message),
		profilesByUser: make(map[string]profile.Profile),
		announcements:  make(map[string]announcement.Announcement),
	}
}

// UserStore implementation ---------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := s.users[u.ID]; exists {
		return user.User{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.users[u.ID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	u.CreatedAt = original.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// RequestStore implementation ------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req relay.Request) (relay.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if _, exists := s.requests[req.ID]; exists {
		return relay.Request{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateRequest(_ context.Context, req relay.Request) (relay.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return relay.Request{}, storage.ErrNotFound
	}

	original.Description = req.Description
	original.IsPublic = req.IsPublic
	original.UpdatedAt = time.Now().UTC()
	s.requests[req.ID] = original
	return original, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (relay.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return relay.Request{}, storage.ErrNotFound
	}
	return req, nil
}

func (s *Store) ListRequests(_ context.Context, filter storage.RequestFilter) ([]relay.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	var result []relay.Request
	for _, req := range s.requests {
		if filter.UserID != "" && req.UserID != filter.UserID {
			continue
		}
		if filter.PublicOnly && !req.IsPublic {
			continue
		}
		if filter.OpenOnly && !req.CanClaim(now) {
			continue
		}
		result = append(result, req)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) TransitionRequest(_ context.Context, id string, from, to relay.RequestStatus, expiresAt time.Time) (relay.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return relay.Request{}, storage.ErrNotFound
	}
	if req.Status != from {
		return relay.Request{}, storage.ErrConflict
	}

	req.Status = to
	if !expiresAt.IsZero() {
		req.ExpiresAt = expiresAt
	}
	req.UpdatedAt = time.Now().UTC()
	s.requests[id] = req
	return req, nil
}

func (s *Store) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.requests, id)
	for fid, f := range s.fulfillments {
		if f.RequestID == id {
			delete(s.fulfillments, fid)
			delete(s.messages, fid)
		}
	}
	return nil
}

// FulfillmentStore implementation --------------------------------------------

func (s *Store) ClaimRequest(_ context.Context, requestID, fulfillerID string) (relay.Request, relay.Fulfillment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return relay.Request{}, relay.Fulfillment{}, storage.ErrNotFound
	}

	now := time.Now().UTC()
	if !req.CanClaim(now) {
		return relay.Request{}, relay.Fulfillment{}, storage.ErrConflict
	}

	req.Status = relay.RequestStatusClaimed
	req.UpdatedAt = now
	s.requests[requestID] = req

	ful := relay.Fulfillment{
		ID:        uuid.NewString(),
		RequestID: requestID,
		UserID:    fulfillerID,
		Status:    relay.FulfillmentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.fulfillments[ful.ID] = ful
	return req, ful, nil
}

func (s *Store) CloseFulfillment(_ context.Context, id, closedBy string, outcome relay.FulfillmentStatus) (relay.Fulfillment, relay.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ful, ok := s.fulfillments[id]
	if !ok {
		return relay.Fulfillment{}, relay.Request{}, storage.ErrNotFound
	}
	if ful.Status != relay.FulfillmentStatusActive {
		return relay.Fulfillment{}, relay.Request{}, storage.ErrConflict
	}

	now := time.Now().UTC()
	ful.Status = outcome
	ful.ClosedBy = closedBy
	ful.ClosedAt = now
	ful.UpdatedAt = now
	s.fulfillments[id] = ful

	req, ok := s.requests[ful.RequestID]
	if !ok {
		return relay.Fulfillment{}, relay.Request{}, storage.ErrNotFound
	}
	req.Status = relay.RequestStatusFor(outcome)
	req.UpdatedAt = now
	s.requests[req.ID] = req

	return ful, req, nil
}

func (s *Store) GetFulfillment(_ context.Context, id string) (relay.Fulfillment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ful, ok := s.fulfillments[id]
	if !ok {
		return relay.Fulfillment{}, storage.ErrNotFound
	}
	return ful, nil
}

func (s *Store) ListFulfillmentsByUser(_ context.Context, userID string) ([]relay.Fulfillment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []relay.Fulfillment
	for _, f := range s.fulfillments {
		if f.UserID == userID {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListFulfillments(_ context.Context) ([]relay.Fulfillment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]relay.Fulfillment, 0, len(s.fulfillments))
	for _, f := range s.fulfillments {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// MessageStore implementation ------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg relay.Message) (relay.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fulfillments[msg.FulfillmentID]; !ok {
		return relay.Message{}, storage.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	s.messages[msg.FulfillmentID] = append(s.messages[msg.FulfillmentID], msg)
	return msg, nil
}

func (s *Store) ListMessagesByFulfillment(_ context.Context, fulfillmentID string) ([]relay.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[fulfillmentID]
	result := make([]relay.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// ProfileStore implementation ------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profilesByUser[p.UserID]; exists {
		return profile.Profile{}, storage.ErrConflict
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profilesByUser[p.UserID] = p
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profilesByUser[p.UserID]
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}
	p.ID = original.ID
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.profilesByUser[p.UserID] = p
	return p, nil
}

func (s *Store) GetProfileByUser(_ context.Context, userID string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profilesByUser[userID]
	if !ok {
		return profile.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeleteProfileByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profilesByUser[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.profilesByUser, userID)
	return nil
}

// AnnouncementStore implementation -------------------------------------------

func (s *Store) CreateAnnouncement(_ context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.announcements[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAnnouncement(_ context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.announcements[a.ID]
	if !ok {
		return announcement.Announcement{}, storage.ErrNotFound
	}
	a.CreatedAt = original.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.announcements[a.ID] = a
	return a, nil
}

func (s *Store) GetAnnouncement(_ context.Context, id string) (announcement.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.announcements[id]
	if !ok {
		return announcement.Announcement{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAnnouncements(_ context.Context) ([]announcement.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]announcement.Announcement, 0, len(s.announcements))
	for _, a := range s.announcements {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}
