package messages

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	"github.com/relaypoint/community_layer/internal/app/storage/memory"
	apperrors "github.com/relaypoint/community_layer/internal/errors"
)

func setup(t *testing.T) (*Service, *memory.Store, relay.Fulfillment) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	req, err := store.CreateRequest(ctx, relay.Request{
		UserID:      "alice",
		Description: "help me move",
		Status:      relay.RequestStatusOpen,
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, ful, err := store.ClaimRequest(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	return New(store, store, store, nil), store, ful
}

func assertCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	se := apperrors.GetServiceError(err)
	if se == nil || se.Code != code {
		t.Fatalf("expected code %s, got %v", code, err)
	}
}

func TestSendAndListOrdering(t *testing.T) {
	svc, _, ful := setup(t)
	ctx := context.Background()

	for _, content := range []string{"hi", "when suits you?", "tomorrow morning"} {
		sender := "alice"
		if content == "when suits you?" {
			sender = "bob"
		}
		if _, err := svc.Send(ctx, sender, ful.ID, content); err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
	}

	msgs, err := svc.List(ctx, "bob", ful.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []string{"hi", "when suits you?", "tomorrow morning"}
	for i, msg := range msgs {
		if msg.Content != want[i] {
			t.Fatalf("message %d = %q, want %q", i, msg.Content, want[i])
		}
	}
}

func TestSendValidation(t *testing.T) {
	svc, _, ful := setup(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", ful.ID, "   "); err == nil {
		t.Fatal("blank content should be rejected")
	} else {
		assertCode(t, err, apperrors.CodeValidation)
	}

	if _, err := svc.Send(ctx, "alice", ful.ID, strings.Repeat("x", MaxContentLen+1)); err == nil {
		t.Fatal("oversize content should be rejected")
	} else {
		assertCode(t, err, apperrors.CodeValidation)
	}
}

func TestPartyOnlyAccess(t *testing.T) {
	svc, _, ful := setup(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "mallory", ful.ID, "let me in"); err == nil {
		t.Fatal("outsider send should be rejected")
	} else {
		assertCode(t, err, apperrors.CodeForbidden)
	}
	if _, err := svc.List(ctx, "mallory", ful.ID); err == nil {
		t.Fatal("outsider list should be rejected")
	} else {
		assertCode(t, err, apperrors.CodeForbidden)
	}

	if _, err := svc.Send(ctx, "alice", "missing", "anyone there?"); err == nil {
		t.Fatal("send to missing fulfillment should fail")
	} else {
		assertCode(t, err, apperrors.CodeNotFound)
	}
}

func TestSendClosedFulfillment(t *testing.T) {
	svc, store, ful := setup(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "bob", ful.ID, "before close"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, _, err := store.CloseFulfillment(ctx, ful.ID, "alice", relay.FulfillmentStatusCompletedSuccess); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := svc.Send(ctx, "bob", ful.ID, "too late"); err == nil {
		t.Fatal("send after close should conflict")
	} else {
		assertCode(t, err, apperrors.CodeConflict)
	}

	// Reading history stays allowed after close.
	msgs, err := svc.List(ctx, "alice", ful.ID)
	if err != nil {
		t.Fatalf("list after close: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}
