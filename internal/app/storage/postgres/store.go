package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/community_layer/internal/app/domain/announcement"
	"github.com/relaypoint/community_layer/internal/app/domain/profile"
	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/domain/user"
	"github.com/relaypoint/community_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)
var _ storage.FulfillmentStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.ProfileStore = (*Store)(nil)
var _ storage.AnnouncementStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_users (id, email, first_name, last_name, is_admin, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.FirstName, u.LastName, u.IsAdmin, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_users
		SET email = $2, first_name = $3, last_name = $4, is_admin = $5, is_verified = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, u.Email, u.FirstName, u.LastName, u.IsAdmin, u.IsVerified, u.UpdatedAt)
	if err != nil {
		return user.User{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, is_admin, is_verified, created_at, updated_at
		FROM relay_users
		WHERE id = $1
	`, id)

	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsAdmin, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, first_name, last_name, is_admin, is_verified, created_at, updated_at
		FROM relay_users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.IsAdmin, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// --- RequestStore -----------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, req relay.Request) (relay.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_requests (id, user_id, description, status, is_public, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.UserID, req.Description, req.Status, req.IsPublic, req.ExpiresAt, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return relay.Request{}, mapError(err)
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req relay.Request) (relay.Request, error) {
	existing, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		return relay.Request{}, err
	}

	existing.Description = req.Description
	existing.IsPublic = req.IsPublic
	existing.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_requests
		SET description = $2, is_public = $3, updated_at = $4
		WHERE id = $1
	`, existing.ID, existing.Description, existing.IsPublic, existing.UpdatedAt)
	if err != nil {
		return relay.Request{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return relay.Request{}, storage.ErrNotFound
	}
	return existing, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (relay.Request, error) {
	return scanRequest(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, description, status, is_public, expires_at, created_at, updated_at
		FROM relay_requests
		WHERE id = $1
	`, id))
}

func (s *Store) ListRequests(ctx context.Context, filter storage.RequestFilter) ([]relay.Request, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // LIMIT ALL
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, description, status, is_public, expires_at, created_at, updated_at
		FROM relay_requests
		WHERE ($1 = '' OR user_id = $1)
		  AND (NOT $2 OR is_public)
		  AND (NOT $3 OR (status = 'open' AND expires_at > NOW()))
		ORDER BY created_at DESC
		LIMIT NULLIF($4, -1) OFFSET $5
	`, filter.UserID, filter.PublicOnly, filter.OpenOnly, limit, filter.Offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []relay.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (s *Store) TransitionRequest(ctx context.Context, id string, from, to relay.RequestStatus, expiresAt time.Time) (relay.Request, error) {
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_requests
		SET status = $3,
		    expires_at = CASE WHEN $4::timestamptz IS NULL THEN expires_at ELSE $4 END,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`, id, from, to, toNullTime(expiresAt), now)
	if err != nil {
		return relay.Request{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Distinguish a missing row from a lost status race.
		if _, err := s.GetRequest(ctx, id); err != nil {
			return relay.Request{}, err
		}
		return relay.Request{}, storage.ErrConflict
	}
	return s.GetRequest(ctx, id)
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM relay_requests WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- FulfillmentStore -------------------------------------------------------

func (s *Store) ClaimRequest(ctx context.Context, requestID, fulfillerID string) (relay.Request, relay.Fulfillment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relay.Request{}, relay.Fulfillment{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE relay_requests
		SET status = 'claimed', updated_at = $2
		WHERE id = $1 AND status = 'open' AND expires_at > $2
	`, requestID, now)
	if err != nil {
		return relay.Request{}, relay.Fulfillment{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetRequest(ctx, requestID); err != nil {
			return relay.Request{}, relay.Fulfillment{}, err
		}
		return relay.Request{}, relay.Fulfillment{}, storage.ErrConflict
	}

	ful := relay.Fulfillment{
		ID:        uuid.NewString(),
		RequestID: requestID,
		UserID:    fulfillerID,
		Status:    relay.FulfillmentStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relay_fulfillments (id, request_id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ful.ID, ful.RequestID, ful.UserID, ful.Status, ful.CreatedAt, ful.UpdatedAt); err != nil {
		return relay.Request{}, relay.Fulfillment{}, mapError(err)
	}

	req, err := scanRequest(tx.QueryRowContext(ctx, `
		SELECT id, user_id, description, status, is_public, expires_at, created_at, updated_at
		FROM relay_requests
		WHERE id = $1
	`, requestID))
	if err != nil {
		return relay.Request{}, relay.Fulfillment{}, err
	}

	if err := tx.Commit(); err != nil {
		return relay.Request{}, relay.Fulfillment{}, err
	}
	return req, ful, nil
}

func (s *Store) CloseFulfillment(ctx context.Context, id, closedBy string, outcome relay.FulfillmentStatus) (relay.Fulfillment, relay.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE relay_fulfillments
		SET status = $2, closed_by = $3, closed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'active'
	`, id, outcome, closedBy, now)
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetFulfillment(ctx, id); err != nil {
			return relay.Fulfillment{}, relay.Request{}, err
		}
		return relay.Fulfillment{}, relay.Request{}, storage.ErrConflict
	}

	ful, err := scanFulfillment(tx.QueryRowContext(ctx, `
		SELECT id, request_id, user_id, status, closed_by, closed_at, created_at, updated_at
		FROM relay_fulfillments
		WHERE id = $1
	`, id))
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE relay_requests
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, ful.RequestID, relay.RequestStatusFor(outcome), now); err != nil {
		return relay.Fulfillment{}, relay.Request{}, mapError(err)
	}

	req, err := scanRequest(tx.QueryRowContext(ctx, `
		SELECT id, user_id, description, status, is_public, expires_at, created_at, updated_at
		FROM relay_requests
		WHERE id = $1
	`, ful.RequestID))
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, err
	}

	if err := tx.Commit(); err != nil {
		return relay.Fulfillment{}, relay.Request{}, err
	}
	return ful, req, nil
}

func (s *Store) GetFulfillment(ctx context.Context, id string) (relay.Fulfillment, error) {
	return scanFulfillment(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, user_id, status, closed_by, closed_at, created_at, updated_at
		FROM relay_fulfillments
		WHERE id = $1
	`, id))
}

func (s *Store) ListFulfillmentsByUser(ctx context.Context, userID string) ([]relay.Fulfillment, error) {
	return s.listFulfillments(ctx, `
		SELECT id, request_id, user_id, status, closed_by, closed_at, created_at, updated_at
		FROM relay_fulfillments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (s *Store) ListFulfillments(ctx context.Context) ([]relay.Fulfillment, error) {
	return s.listFulfillments(ctx, `
		SELECT id, request_id, user_id, status, closed_by, closed_at, created_at, updated_at
		FROM relay_fulfillments
		ORDER BY created_at DESC
	`)
}

func (s *Store) listFulfillments(ctx context.Context, query string, args ...any) ([]relay.Fulfillment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []relay.Fulfillment
	for rows.Next() {
		ful, err := scanFulfillment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ful)
	}
	return result, rows.Err()
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, msg relay.Message) (relay.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_messages (id, fulfillment_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.FulfillmentID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return relay.Message{}, mapError(err)
	}
	return msg, nil
}

func (s *Store) ListMessagesByFulfillment(ctx context.Context, fulfillmentID string) ([]relay.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fulfillment_id, sender_id, content, created_at
		FROM relay_messages
		WHERE fulfillment_id = $1
		ORDER BY created_at
	`, fulfillmentID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []relay.Message
	for rows.Next() {
		var msg relay.Message
		if err := rows.Scan(&msg.ID, &msg.FulfillmentID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_profiles (id, user_id, city, state, country, is_verified, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.UserID, p.City, p.State, p.Country, p.IsVerified, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, mapError(err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	existing, err := s.GetProfileByUser(ctx, p.UserID)
	if err != nil {
		return profile.Profile{}, err
	}

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_profiles
		SET city = $2, state = $3, country = $4, is_verified = $5, is_active = $6, updated_at = $7
		WHERE user_id = $1
	`, p.UserID, p.City, p.State, p.Country, p.IsVerified, p.IsActive, p.UpdatedAt)
	if err != nil {
		return profile.Profile{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return profile.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProfileByUser(ctx context.Context, userID string) (profile.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, city, state, country, is_verified, is_active, created_at, updated_at
		FROM relay_profiles
		WHERE user_id = $1
	`, userID)

	var p profile.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.City, &p.State, &p.Country, &p.IsVerified, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return profile.Profile{}, mapError(err)
	}
	return p, nil
}

func (s *Store) DeleteProfileByUser(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM relay_profiles WHERE user_id = $1
	`, userID)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- AnnouncementStore ------------------------------------------------------

func (s *Store) CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_announcements (id, title, content, type, is_active, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Title, a.Content, a.Type, a.IsActive, toNullTime(a.ExpiresAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return announcement.Announcement{}, mapError(err)
	}
	return a, nil
}

func (s *Store) UpdateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	existing, err := s.GetAnnouncement(ctx, a.ID)
	if err != nil {
		return announcement.Announcement{}, err
	}

	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_announcements
		SET title = $2, content = $3, type = $4, is_active = $5, expires_at = $6, updated_at = $7
		WHERE id = $1
	`, a.ID, a.Title, a.Content, a.Type, a.IsActive, toNullTime(a.ExpiresAt), a.UpdatedAt)
	if err != nil {
		return announcement.Announcement{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return announcement.Announcement{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAnnouncement(ctx context.Context, id string) (announcement.Announcement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, type, is_active, expires_at, created_at, updated_at
		FROM relay_announcements
		WHERE id = $1
	`, id)

	var (
		a         announcement.Announcement
		expiresAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Type, &a.IsActive, &expiresAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return announcement.Announcement{}, mapError(err)
	}
	if expiresAt.Valid {
		a.ExpiresAt = expiresAt.Time.UTC()
	}
	return a, nil
}

func (s *Store) ListAnnouncements(ctx context.Context) ([]announcement.Announcement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, type, is_active, expires_at, created_at, updated_at
		FROM relay_announcements
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []announcement.Announcement
	for rows.Next() {
		var (
			a         announcement.Announcement
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Type, &a.IsActive, &expiresAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			a.ExpiresAt = expiresAt.Time.UTC()
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (relay.Request, error) {
	var req relay.Request
	if err := row.Scan(&req.ID, &req.UserID, &req.Description, &req.Status, &req.IsPublic, &req.ExpiresAt, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return relay.Request{}, mapError(err)
	}
	req.ExpiresAt = req.ExpiresAt.UTC()
	return req, nil
}

func scanFulfillment(row rowScanner) (relay.Fulfillment, error) {
	var (
		ful      relay.Fulfillment
		closedBy sql.NullString
		closedAt sql.NullTime
	)
	if err := row.Scan(&ful.ID, &ful.RequestID, &ful.UserID, &ful.Status, &closedBy, &closedAt, &ful.CreatedAt, &ful.UpdatedAt); err != nil {
		return relay.Fulfillment{}, mapError(err)
	}
	if closedBy.Valid {
		ful.ClosedBy = closedBy.String
	}
	if closedAt.Valid {
		ful.ClosedAt = closedAt.Time.UTC()
	}
	return ful, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
