// Package announcements manages the admin-curated banners surfaced inside
// the relay mini-app.
package announcements

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaypoint/community_layer/internal/app/domain/announcement"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/logging"
)

// Service manages announcements.
type Service struct {
	store storage.AnnouncementStore
	log   *logging.Logger
	now   func() time.Time
}

// New constructs an announcement service.
func New(store storage.AnnouncementStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("announcements")
	}
	return &Service{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Input carries the admin-supplied announcement fields.
type Input struct {
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Type      announcement.Type `json:"type"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Create publishes a new active announcement.
func (s *Service) Create(ctx context.Context, in Input) (announcement.Announcement, error) {
	a, err := validate(in)
	if err != nil {
		return announcement.Announcement{}, err
	}
	a.IsActive = true

	created, err := s.store.CreateAnnouncement(ctx, a)
	if err != nil {
		return announcement.Announcement{}, fmt.Errorf("create announcement: %w", err)
	}
	s.log.WithContext(ctx).Infof("announcement %s published", created.ID)
	return created, nil
}

// Update rewrites an announcement's content in place.
func (s *Service) Update(ctx context.Context, id string, in Input) (announcement.Announcement, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return announcement.Announcement{}, err
	}
	a, err := validate(in)
	if err != nil {
		return announcement.Announcement{}, err
	}
	a.ID = existing.ID
	a.IsActive = existing.IsActive

	updated, err := s.store.UpdateAnnouncement(ctx, a)
	if err != nil {
		return announcement.Announcement{}, fmt.Errorf("update announcement: %w", err)
	}
	return updated, nil
}

// Deactivate retires an announcement without deleting its history.
func (s *Service) Deactivate(ctx context.Context, id string) (announcement.Announcement, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return announcement.Announcement{}, err
	}
	existing.IsActive = false

	updated, err := s.store.UpdateAnnouncement(ctx, existing)
	if err != nil {
		return announcement.Announcement{}, fmt.Errorf("deactivate announcement: %w", err)
	}
	s.log.WithContext(ctx).Infof("announcement %s deactivated", id)
	return updated, nil
}

// ListActive returns the announcements currently visible to users.
func (s *Service) ListActive(ctx context.Context) ([]announcement.Announcement, error) {
	all, err := s.store.ListAnnouncements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	now := s.now()
	var result []announcement.Announcement
	for _, a := range all {
		if a.Visible(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

// ListAll returns every announcement, active or not. Admin path only.
func (s *Service) ListAll(ctx context.Context) ([]announcement.Announcement, error) {
	all, err := s.store.ListAnnouncements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return all, nil
}

func (s *Service) get(ctx context.Context, id string) (announcement.Announcement, error) {
	a, err := s.store.GetAnnouncement(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return announcement.Announcement{}, errors.NotFound("announcement", id)
		}
		return announcement.Announcement{}, fmt.Errorf("get announcement: %w", err)
	}
	return a, nil
}

func validate(in Input) (announcement.Announcement, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" {
		return announcement.Announcement{}, errors.Validation("title is required")
	}
	if content == "" {
		return announcement.Announcement{}, errors.Validation("content is required")
	}
	typ := in.Type
	if typ == "" {
		typ = announcement.TypeInfo
	}
	if !typ.Valid() {
		return announcement.Announcement{}, errors.Validation("unknown announcement type")
	}
	return announcement.Announcement{
		Title:     title,
		Content:   content,
		Type:      typ,
		ExpiresAt: in.ExpiresAt,
	}, nil
}
