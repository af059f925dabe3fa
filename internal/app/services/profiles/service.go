// Package profiles manages relay mini-app profiles, one per user.
package profiles

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/relaypoint/community_layer/internal/app/domain/profile"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/logging"
)

// Service manages user profiles.
type Service struct {
	store storage.ProfileStore
	log   *logging.Logger
}

// New constructs a profile service.
func New(store storage.ProfileStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("profiles")
	}
	return &Service{store: store, log: log}
}

// Input carries the caller-editable profile fields.
type Input struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Upsert creates the caller's profile, or updates it when one already exists.
// Verification is admin-controlled and never writable here.
func (s *Service) Upsert(ctx context.Context, userID string, in Input) (profile.Profile, error) {
	if userID == "" {
		return profile.Profile{}, errors.Unauthorized("missing user identity")
	}

	p := profile.Profile{
		UserID:   userID,
		City:     strings.TrimSpace(in.City),
		State:    strings.TrimSpace(in.State),
		Country:  strings.TrimSpace(in.Country),
		IsActive: true,
	}

	existing, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			return profile.Profile{}, fmt.Errorf("get profile: %w", err)
		}
		created, err := s.store.CreateProfile(ctx, p)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("create profile: %w", err)
		}
		s.log.WithContext(ctx).Infof("profile created for %s", userID)
		return created, nil
	}

	p.IsVerified = existing.IsVerified
	p.IsActive = existing.IsActive
	updated, err := s.store.UpdateProfile(ctx, p)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// Get returns userID's profile.
func (s *Service) Get(ctx context.Context, userID string) (profile.Profile, error) {
	p, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return profile.Profile{}, errors.NotFound("profile", userID)
		}
		return profile.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Delete removes the caller's profile.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.DeleteProfileByUser(ctx, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("profile", userID)
		}
		return fmt.Errorf("delete profile: %w", err)
	}
	s.log.WithContext(ctx).Infof("profile deleted for %s", userID)
	return nil
}

// SetVerified flips the admin-controlled verification flag.
func (s *Service) SetVerified(ctx context.Context, userID string, verified bool) (profile.Profile, error) {
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return profile.Profile{}, err
	}
	existing.IsVerified = verified
	updated, err := s.store.UpdateProfile(ctx, existing)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}
