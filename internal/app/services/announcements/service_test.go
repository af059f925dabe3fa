package announcements

import (
	"context"
	"testing"
	"time"

	"github.com/relaypoint/community_layer/internal/app/domain/announcement"
	"github.com/relaypoint/community_layer/internal/app/storage/memory"
	apperrors "github.com/relaypoint/community_layer/internal/errors"
)

func TestAnnouncementLifecycle(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, Input{Title: "Maintenance window", Content: "Sunday 02:00 UTC", Type: announcement.TypeMaintenance})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.IsActive {
		t.Fatal("new announcement should be active")
	}

	updated, err := svc.Update(ctx, created.ID, Input{Title: "Maintenance moved", Content: "Monday 02:00 UTC", Type: announcement.TypeMaintenance})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Maintenance moved" {
		t.Fatalf("title = %q", updated.Title)
	}

	active, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active announcement, got %d", len(active))
	}

	deactivated, err := svc.Deactivate(ctx, created.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.IsActive {
		t.Fatal("announcement should be inactive")
	}

	active, err = svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active announcements, got %d", len(active))
	}

	// Deactivation keeps the row for the admin view.
	all, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 announcement in admin view, got %d", len(all))
	}
}

func TestAnnouncementValidation(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Input{Title: "", Content: "body"}); err == nil {
		t.Fatal("blank title should be rejected")
	} else if se := apperrors.GetServiceError(err); se == nil || se.Code != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := svc.Create(ctx, Input{Title: "t", Content: "c", Type: announcement.Type("bogus")}); err == nil {
		t.Fatal("unknown type should be rejected")
	}

	created, err := svc.Create(ctx, Input{Title: "t", Content: "c"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Type != announcement.TypeInfo {
		t.Fatalf("default type = %s, want info", created.Type)
	}

	if _, err := svc.Update(ctx, "missing", Input{Title: "t", Content: "c"}); err == nil {
		t.Fatal("update of missing announcement should fail")
	} else if se := apperrors.GetServiceError(err); se == nil || se.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpiredAnnouncementHidden(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, Input{Title: "flash sale", Content: "today only", Type: announcement.TypePromotion, ExpiresAt: time.Now().UTC().Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	active, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expired announcement should be hidden, got %d", len(active))
	}
}
