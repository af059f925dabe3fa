package users

import (
	"context"
	"testing"

	"github.com/relaypoint/community_layer/internal/app/storage/memory"
	apperrors "github.com/relaypoint/community_layer/internal/errors"
)

func TestEnsureIsIdempotent(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := svc.Ensure(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID || !first.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("ensure created a second row: %#v vs %#v", first, second)
	}

	if _, err := svc.Ensure(ctx, ""); err == nil {
		t.Fatal("ensure without identity should fail")
	} else if se := apperrors.GetServiceError(err); se == nil || se.Code != apperrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateAndVerify(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Ensure(ctx, "alice"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	updated, err := svc.Update(ctx, "alice", Input{Email: " a@example.com ", FirstName: "Alice", LastName: "Adams"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Email != "a@example.com" || updated.DisplayName() != "Alice Adams" {
		t.Fatalf("unexpected user: %#v", updated)
	}

	verified, err := svc.SetVerified(ctx, "alice", true)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !verified.IsVerified {
		t.Fatal("user should be verified")
	}

	if _, err := svc.Update(ctx, "missing", Input{}); err == nil {
		t.Fatal("update of missing user should fail")
	} else if se := apperrors.GetServiceError(err); se == nil || se.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
