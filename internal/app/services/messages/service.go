// Package messages implements the per-fulfillment chat thread between the
// requester and the fulfiller.
package messages

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/metrics"
	"github.com/relaypoint/community_layer/internal/app/storage"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/logging"
)

// MaxContentLen bounds a single message body.
const MaxContentLen = 2000

// Service manages fulfillment message threads.
type Service struct {
	store        storage.MessageStore
	fulfillments storage.FulfillmentStore
	requests     storage.RequestStore
	log          *logging.Logger
}

// New constructs a message service.
func New(store storage.MessageStore, fulfillments storage.FulfillmentStore, requests storage.RequestStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("messages")
	}
	return &Service{
		store:        store,
		fulfillments: fulfillments,
		requests:     requests,
		log:          log,
	}
}

// Send appends a message to an active fulfillment's thread. Only the two
// parties may write, and only while the fulfillment is active.
func (s *Service) Send(ctx context.Context, userID, fulfillmentID, content string) (relay.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return relay.Message{}, errors.Validation("content is required")
	}
	if len([]rune(content)) > MaxContentLen {
		return relay.Message{}, errors.Validation(fmt.Sprintf("content must be at most %d characters", MaxContentLen))
	}

	ful, err := s.authorize(ctx, userID, fulfillmentID)
	if err != nil {
		return relay.Message{}, err
	}
	if ful.Status != relay.FulfillmentStatusActive {
		return relay.Message{}, errors.Conflict("fulfillment is closed")
	}

	msg, err := s.store.CreateMessage(ctx, relay.Message{
		FulfillmentID: fulfillmentID,
		SenderID:      userID,
		Content:       content,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return relay.Message{}, errors.NotFound("fulfillment", fulfillmentID)
		}
		return relay.Message{}, fmt.Errorf("create message: %w", err)
	}
	metrics.RecordMessage()
	return msg, nil
}

// List returns the thread in send order. Both parties may read it, including
// after the fulfillment is closed.
func (s *Service) List(ctx context.Context, userID, fulfillmentID string) ([]relay.Message, error) {
	if _, err := s.authorize(ctx, userID, fulfillmentID); err != nil {
		return nil, err
	}
	result, err := s.store.ListMessagesByFulfillment(ctx, fulfillmentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return result, nil
}

func (s *Service) authorize(ctx context.Context, userID, fulfillmentID string) (relay.Fulfillment, error) {
	ful, err := s.fulfillments.GetFulfillment(ctx, fulfillmentID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return relay.Fulfillment{}, errors.NotFound("fulfillment", fulfillmentID)
		}
		return relay.Fulfillment{}, fmt.Errorf("get fulfillment: %w", err)
	}
	if ful.UserID == userID {
		return ful, nil
	}
	req, err := s.requests.GetRequest(ctx, ful.RequestID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return relay.Fulfillment{}, errors.NotFound("request", ful.RequestID)
		}
		return relay.Fulfillment{}, fmt.Errorf("get request: %w", err)
	}
	if req.UserID != userID {
		return relay.Fulfillment{}, errors.Forbidden("not a party to this fulfillment")
	}
	return ful, nil
}
