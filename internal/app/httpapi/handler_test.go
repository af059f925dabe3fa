package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/relaypoint/community_layer/internal/app"
	"github.com/relaypoint/community_layer/internal/middleware"
)

var testSecret = []byte("handler-test-secret")

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	auth := middleware.NewAuthMiddleware(testSecret, nil, []string{"/healthz"})
	return auth.Handler(NewHandler(application))
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := &middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, handler http.Handler, method, path, userToken string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if userToken != "" {
		req.Header.Set("Authorization", "Bearer "+userToken)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %s: %v", resp.Body.String(), err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	return body.Error.Code
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")
	bob := token(t, "bob", "")

	resp := doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{
		"description": "need a ride to the airport",
		"is_public":   true,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &created)
	if created.Status != "open" {
		t.Fatalf("status = %s", created.Status)
	}

	// Self-claim is forbidden.
	resp = doJSON(t, handler, http.MethodPost, "/relay/requests/"+created.ID+"/claim", alice, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("self-claim: expected 403, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/relay/requests/"+created.ID+"/claim", bob, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("claim: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var claim struct {
		Request struct {
			Status string `json:"status"`
		} `json:"request"`
		Fulfillment struct {
			ID string `json:"id"`
		} `json:"fulfillment"`
	}
	decodeBody(t, resp, &claim)
	if claim.Request.Status != "claimed" {
		t.Fatalf("request status = %s", claim.Request.Status)
	}

	// Losing claimer gets a conflict.
	carol := token(t, "carol", "")
	resp = doJSON(t, handler, http.MethodPost, "/relay/requests/"+created.ID+"/claim", carol, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("second claim: expected 409, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "conflict" {
		t.Fatalf("error code = %s", code)
	}

	// Both parties chat.
	fulID := claim.Fulfillment.ID
	resp = doJSON(t, handler, http.MethodPost, "/relay/fulfillments/"+fulID+"/messages", bob, map[string]any{"content": "be there in 10"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("send message: expected 201, got %d", resp.Code)
	}
	resp = doJSON(t, handler, http.MethodPost, "/relay/fulfillments/"+fulID+"/messages", alice, map[string]any{"content": "great, thanks"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("send message: expected 201, got %d", resp.Code)
	}
	resp = doJSON(t, handler, http.MethodGet, "/relay/fulfillments/"+fulID+"/messages", carol, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("outsider messages: expected 403, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/relay/fulfillments/"+fulID+"/messages", alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", resp.Code)
	}
	var msgs []struct {
		Content string `json:"content"`
	}
	decodeBody(t, resp, &msgs)
	if len(msgs) != 2 || msgs[0].Content != "be there in 10" {
		t.Fatalf("unexpected thread: %#v", msgs)
	}

	// Close as success; request mirrors the outcome.
	resp = doJSON(t, handler, http.MethodPost, "/relay/fulfillments/"+fulID+"/close", bob, map[string]any{"outcome": "completed_success"})
	if resp.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var closed struct {
		Request struct {
			Status string `json:"status"`
		} `json:"request"`
	}
	decodeBody(t, resp, &closed)
	if closed.Request.Status != "completed_success" {
		t.Fatalf("request status = %s", closed.Request.Status)
	}

	// Double close conflicts.
	resp = doJSON(t, handler, http.MethodPost, "/relay/fulfillments/"+fulID+"/close", alice, map[string]any{"outcome": "cancelled"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("double close: expected 409, got %d", resp.Code)
	}

	// Chat is closed with the fulfillment.
	resp = doJSON(t, handler, http.MethodPost, "/relay/fulfillments/"+fulID+"/messages", bob, map[string]any{"content": "too late"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("message after close: expected 409, got %d", resp.Code)
	}
}

func TestZeroTTLRequestOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")
	bob := token(t, "bob", "")

	// An explicit ttl_seconds of 0 is honored, not replaced by the default.
	resp := doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{
		"description": "gone before it starts",
		"ttl_seconds": 0,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)

	resp = doJSON(t, handler, http.MethodGet, "/relay/requests/"+created.ID, alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
	var got struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &got)
	if got.Status != "expired" {
		t.Fatalf("status = %s, want expired on first read", got.Status)
	}

	resp = doJSON(t, handler, http.MethodPost, "/relay/requests/"+created.ID+"/claim", bob, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("claim: expected 409, got %d", resp.Code)
	}
}

func TestStatusMapping(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")

	// 401 without a token.
	resp := doJSON(t, handler, http.MethodGet, "/relay/requests", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "unauthorized" {
		t.Fatalf("error code = %s", code)
	}

	// 400 on validation failure.
	resp = doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{"description": ""})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "validation_error" {
		t.Fatalf("error code = %s", code)
	}

	// 404 for an unknown id.
	resp = doJSON(t, handler, http.MethodGet, "/relay/requests/nope", alice, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	// 403 for a private request read by an outsider.
	resp = doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{"description": "private"})
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)
	mallory := token(t, "mallory", "")
	resp = doJSON(t, handler, http.MethodGet, "/relay/requests/"+created.ID, mallory, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestPublicFeedWithoutAuth(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")

	doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{"description": "visible to all", "is_public": true})
	doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{"description": "mine only"})

	resp := doJSON(t, handler, http.MethodGet, "/relay/public", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("public feed: expected 200, got %d", resp.Code)
	}
	var feed []struct {
		Description string `json:"description"`
	}
	decodeBody(t, resp, &feed)
	if len(feed) != 1 || feed[0].Description != "visible to all" {
		t.Fatalf("unexpected feed: %#v", feed)
	}
}

func TestAdminSurface(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")
	admin := token(t, "root", "admin")

	resp := doJSON(t, handler, http.MethodGet, "/relay/admin/requests", alice, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-admin: expected 403, got %d", resp.Code)
	}

	doJSON(t, handler, http.MethodPost, "/relay/requests", alice, map[string]any{"description": "to be moderated"})

	resp = doJSON(t, handler, http.MethodGet, "/relay/admin/requests", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin list: expected 200, got %d", resp.Code)
	}
	var reqs []struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &reqs)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}

	resp = doJSON(t, handler, http.MethodDelete, "/relay/admin/requests/"+reqs[0].ID, admin, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("admin delete: expected 204, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/relay/admin/announcements", admin, map[string]any{
		"title":   "Welcome",
		"content": "The relay mini-app is live.",
		"type":    "info",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create announcement: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var ann struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &ann)

	// Users see it on the authenticated surface.
	resp = doJSON(t, handler, http.MethodGet, "/relay/announcements", alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list announcements: expected 200, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPost, "/relay/admin/announcements/"+ann.ID+"/deactivate", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", resp.Code)
	}
}

func TestProfileAndMe(t *testing.T) {
	handler := newTestHandler(t)
	alice := token(t, "alice", "")

	resp := doJSON(t, handler, http.MethodGet, "/relay/me", alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodPut, "/relay/me", alice, map[string]any{"first_name": "Alice", "last_name": "Adams"})
	if resp.Code != http.StatusOK {
		t.Fatalf("update me: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, http.MethodPut, "/relay/profile", alice, map[string]any{"city": "Lagos", "country": "NG"})
	if resp.Code != http.StatusOK {
		t.Fatalf("upsert profile: expected 200, got %d", resp.Code)
	}

	resp = doJSON(t, handler, http.MethodGet, "/relay/profile", alice, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get profile: expected 200, got %d", resp.Code)
	}
	var p struct {
		City string `json:"city"`
	}
	decodeBody(t, resp, &p)
	if p.City != "Lagos" {
		t.Fatalf("city = %q", p.City)
	}

	resp = doJSON(t, handler, http.MethodDelete, "/relay/profile", alice, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete profile: expected 204, got %d", resp.Code)
	}
}
