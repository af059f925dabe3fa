// Package users keeps a platform-side record per authenticated identity.
package users

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/relaypoint/community_layer/internal/app/domain/user"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/logging"
)

// Service manages user records.
type Service struct {
	store storage.UserStore
	log   *logging.Logger
}

// New constructs a user service.
func New(store storage.UserStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// Input carries the self-editable user fields.
type Input struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Ensure creates the user row for id when it does not exist yet and returns
// it. Called on first authenticated contact.
func (s *Service) Ensure(ctx context.Context, id string) (user.User, error) {
	if id == "" {
		return user.User{}, errors.Unauthorized("missing user identity")
	}
	existing, err := s.store.GetUser(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{ID: id})
	if err != nil {
		// Lost a concurrent first-contact race.
		if stderrors.Is(err, storage.ErrConflict) {
			return s.Get(ctx, id)
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.WithContext(ctx).Infof("user %s registered", id)
	return created, nil
}

// Get returns the user record for id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("user", id)
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Update rewrites the caller's own display fields.
func (s *Service) Update(ctx context.Context, id string, in Input) (user.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	existing.Email = strings.TrimSpace(in.Email)
	existing.FirstName = strings.TrimSpace(in.FirstName)
	existing.LastName = strings.TrimSpace(in.LastName)

	updated, err := s.store.UpdateUser(ctx, existing)
	if err != nil {
		return user.User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

// List returns every user. Admin path only.
func (s *Service) List(ctx context.Context) ([]user.User, error) {
	result, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return result, nil
}

// SetVerified flips the admin-controlled verification flag on the user row.
func (s *Service) SetVerified(ctx context.Context, id string, verified bool) (user.User, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return user.User{}, err
	}
	existing.IsVerified = verified
	updated, err := s.store.UpdateUser(ctx, existing)
	if err != nil {
		return user.User{}, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}
