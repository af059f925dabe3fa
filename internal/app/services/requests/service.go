// Package requests implements the relay request lifecycle: posting,
// claiming, closing, cancelling, expiring and reposting requests.
package requests

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/metrics"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/logging"
)

// Service manages relay requests and their fulfillments.
type Service struct {
	store        storage.RequestStore
	fulfillments storage.FulfillmentStore
	users        storage.UserStore
	profiles     storage.ProfileStore
	log          *logging.Logger
	now          func() time.Time
}

// New constructs a request service.
func New(store storage.RequestStore, fulfillments storage.FulfillmentStore, users storage.UserStore, profiles storage.ProfileStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("requests")
	}
	return &Service{
		store:        store,
		fulfillments: fulfillments,
		users:        users,
		profiles:     profiles,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput carries the caller-supplied fields for a new request. A nil
// TTL means the default horizon; an explicit zero creates a request whose
// deadline is already due, so it reads as expired immediately.
type CreateInput struct {
	Description string         `json:"description"`
	IsPublic    bool           `json:"is_public"`
	TTL         *time.Duration `json:"-"`
}

// PublicRequest is a request enriched with its creator's public identity for
// the unauthenticated feed.
type PublicRequest struct {
	relay.Request
	CreatorName     string `json:"creator_name,omitempty"`
	CreatorVerified bool   `json:"creator_verified"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Country         string `json:"country,omitempty"`
}

// Create posts a new open request owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (relay.Request, error) {
	if userID == "" {
		return relay.Request{}, errors.Unauthorized("missing user identity")
	}
	description, err := validateDescription(in.Description)
	if err != nil {
		return relay.Request{}, err
	}
	ttl, err := resolveTTL(in.TTL)
	if err != nil {
		return relay.Request{}, err
	}

	now := s.now()
	req := relay.Request{
		UserID:      userID,
		Description: description,
		Status:      relay.RequestStatusOpen,
		IsPublic:    in.IsPublic,
		ExpiresAt:   now.Add(ttl),
	}

	created, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return relay.Request{}, fmt.Errorf("create request: %w", err)
	}
	metrics.RecordRequestTransition("created")
	s.log.WithContext(ctx).Infof("request %s created by %s", created.ID, userID)
	return created, nil
}

// Get returns a single request visible to userID: its owner, the claimer, or
// anyone when the request is public. Expiry is settled on read.
func (s *Service) Get(ctx context.Context, userID, id string) (relay.Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return relay.Request{}, err
	}
	if !req.IsPublic && !req.Party(userID) {
		claimed, err := s.claimedBy(ctx, req.ID, userID)
		if err != nil {
			return relay.Request{}, err
		}
		if !claimed {
			return relay.Request{}, errors.Forbidden("not a party to this request")
		}
	}
	return req, nil
}

// List returns the caller's own requests, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]relay.Request, error) {
	limit, offset, err := normalizePage(limit, offset)
	if err != nil {
		return nil, err
	}
	result, err := s.store.ListRequests(ctx, storage.RequestFilter{UserID: userID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return s.settleExpiry(ctx, result), nil
}

// ListPublic returns claimable public requests enriched with creator identity.
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]PublicRequest, error) {
	limit, offset, err := normalizePage(limit, offset)
	if err != nil {
		return nil, err
	}
	reqs, err := s.store.ListRequests(ctx, storage.RequestFilter{PublicOnly: true, OpenOnly: true, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("list public requests: %w", err)
	}

	result := make([]PublicRequest, 0, len(reqs))
	for _, req := range reqs {
		enriched := PublicRequest{Request: req}
		if s.users != nil {
			if u, err := s.users.GetUser(ctx, req.UserID); err == nil {
				enriched.CreatorName = u.DisplayName()
				enriched.CreatorVerified = u.IsVerified
			}
		}
		if s.profiles != nil {
			if p, err := s.profiles.GetProfileByUser(ctx, req.UserID); err == nil && p.IsActive {
				enriched.City = p.City
				enriched.State = p.State
				enriched.Country = p.Country
				enriched.CreatorVerified = enriched.CreatorVerified || p.IsVerified
			}
		}
		result = append(result, enriched)
	}
	return result, nil
}

// Update rewrites description and visibility of an open, unexpired request.
// Only the owner may edit, and only before anyone claims.
func (s *Service) Update(ctx context.Context, userID, id string, in CreateInput) (relay.Request, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return relay.Request{}, err
	}
	if req.UserID != userID {
		return relay.Request{}, errors.Forbidden("only the requester may edit")
	}
	if req.Status != relay.RequestStatusOpen {
		return relay.Request{}, errors.Conflict("only open requests can be edited")
	}
	description, err := validateDescription(in.Description)
	if err != nil {
		return relay.Request{}, err
	}

	req.Description = description
	req.IsPublic = in.IsPublic
	updated, err := s.store.UpdateRequest(ctx, req)
	if err != nil {
		return relay.Request{}, s.translate(err, "request", id)
	}
	return updated, nil
}

// Claim atomically binds userID as the fulfiller of an open request. The
// requester cannot claim their own request; losing a claim race, an expired
// deadline or a non-open status all surface as a conflict.
func (s *Service) Claim(ctx context.Context, userID, requestID string) (relay.Request, relay.Fulfillment, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return relay.Request{}, relay.Fulfillment{}, err
	}
	if req.UserID == userID {
		return relay.Request{}, relay.Fulfillment{}, errors.Forbidden("cannot claim your own request")
	}

	claimedReq, ful, err := s.fulfillments.ClaimRequest(ctx, requestID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return relay.Request{}, relay.Fulfillment{}, errors.Conflict("request is not open for claiming")
		}
		return relay.Request{}, relay.Fulfillment{}, s.translate(err, "request", requestID)
	}
	metrics.RecordRequestTransition(string(relay.RequestStatusClaimed))
	s.log.WithContext(ctx).Infof("request %s claimed by %s", requestID, userID)
	return claimedReq, ful, nil
}

// Close resolves an active fulfillment to a terminal outcome. Either party
// may close; the request mirrors the outcome.
func (s *Service) Close(ctx context.Context, userID, fulfillmentID string, outcome relay.FulfillmentStatus) (relay.Fulfillment, relay.Request, error) {
	if !relay.TerminalOutcome(outcome) {
		return relay.Fulfillment{}, relay.Request{}, errors.Validation("outcome must be completed_success, completed_failure or cancelled")
	}

	ful, err := s.fulfillments.GetFulfillment(ctx, fulfillmentID)
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, s.translate(err, "fulfillment", fulfillmentID)
	}
	req, err := s.store.GetRequest(ctx, ful.RequestID)
	if err != nil {
		return relay.Fulfillment{}, relay.Request{}, s.translate(err, "request", ful.RequestID)
	}
	if userID != ful.UserID && userID != req.UserID {
		return relay.Fulfillment{}, relay.Request{}, errors.Forbidden("only the requester or fulfiller may close")
	}

	closedFul, closedReq, err := s.fulfillments.CloseFulfillment(ctx, fulfillmentID, userID, outcome)
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return relay.Fulfillment{}, relay.Request{}, errors.Conflict("fulfillment is already closed")
		}
		return relay.Fulfillment{}, relay.Request{}, s.translate(err, "fulfillment", fulfillmentID)
	}
	metrics.RecordRequestTransition(string(closedReq.Status))
	s.log.WithContext(ctx).Infof("fulfillment %s closed by %s as %s", fulfillmentID, userID, outcome)
	return closedFul, closedReq, nil
}

// Cancel withdraws an open request. Claimed requests are cancelled through
// their fulfillment so both sides resolve together.
func (s *Service) Cancel(ctx context.Context, userID, requestID string) (relay.Request, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return relay.Request{}, err
	}
	if req.UserID != userID {
		return relay.Request{}, errors.Forbidden("only the requester may cancel")
	}
	if req.Status != relay.RequestStatusOpen {
		return relay.Request{}, errors.Conflict("only open requests can be cancelled")
	}

	cancelled, err := s.store.TransitionRequest(ctx, requestID, relay.RequestStatusOpen, relay.RequestStatusCancelled, time.Time{})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return relay.Request{}, errors.Conflict("request is no longer open")
		}
		return relay.Request{}, s.translate(err, "request", requestID)
	}
	metrics.RecordRequestTransition(string(relay.RequestStatusCancelled))
	s.log.WithContext(ctx).Infof("request %s cancelled", requestID)
	return cancelled, nil
}

// Repost reopens an expired request with a fresh deadline. Expired is the
// only terminal state that allows this; completed and cancelled requests
// stay closed.
func (s *Service) Repost(ctx context.Context, userID, requestID string, ttl *time.Duration) (relay.Request, error) {
	horizon, err := resolveTTL(ttl)
	if err != nil {
		return relay.Request{}, err
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return relay.Request{}, err
	}
	if req.UserID != userID {
		return relay.Request{}, errors.Forbidden("only the requester may repost")
	}
	if req.Status != relay.RequestStatusExpired {
		return relay.Request{}, errors.Conflict("only expired requests can be reposted")
	}

	reopened, err := s.store.TransitionRequest(ctx, requestID, relay.RequestStatusExpired, relay.RequestStatusOpen, s.now().Add(horizon))
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return relay.Request{}, errors.Conflict("request is no longer expired")
		}
		return relay.Request{}, s.translate(err, "request", requestID)
	}
	metrics.RecordRequestTransition(string(relay.RequestStatusOpen))
	s.log.WithContext(ctx).Infof("request %s reposted", requestID)
	return reopened, nil
}

// GetFulfillment returns a fulfillment to one of its parties.
func (s *Service) GetFulfillment(ctx context.Context, userID, id string) (relay.Fulfillment, error) {
	ful, err := s.fulfillments.GetFulfillment(ctx, id)
	if err != nil {
		return relay.Fulfillment{}, s.translate(err, "fulfillment", id)
	}
	if ok, err := s.isParty(ctx, ful, userID); err != nil {
		return relay.Fulfillment{}, err
	} else if !ok {
		return relay.Fulfillment{}, errors.Forbidden("not a party to this fulfillment")
	}
	return ful, nil
}

// ListFulfillments returns the caller's claims, newest first.
func (s *Service) ListFulfillments(ctx context.Context, userID string) ([]relay.Fulfillment, error) {
	result, err := s.fulfillments.ListFulfillmentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list fulfillments: %w", err)
	}
	return result, nil
}

// AdminList returns all requests regardless of owner or visibility.
func (s *Service) AdminList(ctx context.Context, limit, offset int) ([]relay.Request, error) {
	limit, offset, err := normalizePage(limit, offset)
	if err != nil {
		return nil, err
	}
	result, err := s.store.ListRequests(ctx, storage.RequestFilter{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("admin list requests: %w", err)
	}
	return s.settleExpiry(ctx, result), nil
}

// AdminListFulfillments returns every fulfillment regardless of party.
func (s *Service) AdminListFulfillments(ctx context.Context) ([]relay.Fulfillment, error) {
	result, err := s.fulfillments.ListFulfillments(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin list fulfillments: %w", err)
	}
	return result, nil
}

// AdminDelete removes a request together with its fulfillments and messages.
func (s *Service) AdminDelete(ctx context.Context, id string) error {
	if err := s.store.DeleteRequest(ctx, id); err != nil {
		return s.translate(err, "request", id)
	}
	s.log.WithContext(ctx).Infof("request %s deleted", id)
	return nil
}

// load fetches a request and settles lazy expiry: an open request past its
// deadline is persisted as expired before it is returned.
func (s *Service) load(ctx context.Context, id string) (relay.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return relay.Request{}, s.translate(err, "request", id)
	}
	return s.expireIfDue(ctx, req), nil
}

func (s *Service) expireIfDue(ctx context.Context, req relay.Request) relay.Request {
	if !req.Expired(s.now()) {
		return req
	}
	expired, err := s.store.TransitionRequest(ctx, req.ID, relay.RequestStatusOpen, relay.RequestStatusExpired, time.Time{})
	if err != nil {
		// Lost the write race; present the derived state either way.
		req.Status = relay.RequestStatusExpired
		return req
	}
	metrics.RecordRequestTransition(string(relay.RequestStatusExpired))
	return expired
}

func (s *Service) settleExpiry(ctx context.Context, reqs []relay.Request) []relay.Request {
	for i, req := range reqs {
		if req.Expired(s.now()) {
			reqs[i] = s.expireIfDue(ctx, req)
		}
	}
	return reqs
}

func (s *Service) claimedBy(ctx context.Context, requestID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	fuls, err := s.fulfillments.ListFulfillmentsByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list fulfillments: %w", err)
	}
	for _, f := range fuls {
		if f.RequestID == requestID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) isParty(ctx context.Context, ful relay.Fulfillment, userID string) (bool, error) {
	if ful.UserID == userID {
		return true, nil
	}
	req, err := s.store.GetRequest(ctx, ful.RequestID)
	if err != nil {
		return false, s.translate(err, "request", ful.RequestID)
	}
	return req.UserID == userID, nil
}

func (s *Service) translate(err error, entity, id string) error {
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(entity, id)
	}
	if stderrors.Is(err, storage.ErrConflict) {
		return errors.Conflict(entity + " is in a conflicting state")
	}
	return err
}

// resolveTTL maps an absent ttl to the default horizon. An explicit zero is
// kept as-is: the deadline lands on now and the request is born expired.
func resolveTTL(ttl *time.Duration) (time.Duration, error) {
	if ttl == nil {
		return relay.DefaultTTL, nil
	}
	if *ttl < 0 {
		return 0, errors.Validation("ttl must not be negative")
	}
	return *ttl, nil
}

func validateDescription(raw string) (string, error) {
	description := strings.TrimSpace(raw)
	if description == "" {
		return "", errors.Validation("description is required")
	}
	if len([]rune(description)) > relay.MaxDescriptionLen {
		return "", errors.Validation(fmt.Sprintf("description must be at most %d characters", relay.MaxDescriptionLen))
	}
	return description, nil
}

func normalizePage(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, errors.Validation("limit and offset must not be negative")
	}
	if limit == 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return limit, offset, nil
}
