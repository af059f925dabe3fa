// Package httpapi exposes the relay services over REST.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/relaypoint/community_layer/internal/app"
	"github.com/relaypoint/community_layer/internal/app/domain/relay"
	announcementsvc "github.com/relaypoint/community_layer/internal/app/services/announcements"
	profilesvc "github.com/relaypoint/community_layer/internal/app/services/profiles"
	requestsvc "github.com/relaypoint/community_layer/internal/app/services/requests"
	usersvc "github.com/relaypoint/community_layer/internal/app/services/users"
	"github.com/relaypoint/community_layer/internal/errors"
	"github.com/relaypoint/community_layer/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the relay REST API. Authentication,
// logging and metrics are layered on by the caller; the admin subtree is
// role-gated here.
func NewHandler(application *app.Application) *mux.Router {
	h := &handler{app: application}

	r := mux.NewRouter()

	// Authenticated user surface.
	r.HandleFunc("/relay/requests", h.createRequest).Methods(http.MethodPost)
	r.HandleFunc("/relay/requests", h.listRequests).Methods(http.MethodGet)
	r.HandleFunc("/relay/requests/{id}", h.getRequest).Methods(http.MethodGet)
	r.HandleFunc("/relay/requests/{id}", h.updateRequest).Methods(http.MethodPut)
	r.HandleFunc("/relay/requests/{id}/claim", h.claimRequest).Methods(http.MethodPost)
	r.HandleFunc("/relay/requests/{id}/cancel", h.cancelRequest).Methods(http.MethodPost)
	r.HandleFunc("/relay/requests/{id}/repost", h.repostRequest).Methods(http.MethodPost)

	r.HandleFunc("/relay/fulfillments", h.listFulfillments).Methods(http.MethodGet)
	r.HandleFunc("/relay/fulfillments/{id}", h.getFulfillment).Methods(http.MethodGet)
	r.HandleFunc("/relay/fulfillments/{id}/close", h.closeFulfillment).Methods(http.MethodPost)
	r.HandleFunc("/relay/fulfillments/{id}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/relay/fulfillments/{id}/messages", h.listMessages).Methods(http.MethodGet)

	r.HandleFunc("/relay/me", h.getMe).Methods(http.MethodGet)
	r.HandleFunc("/relay/me", h.updateMe).Methods(http.MethodPut)

	r.HandleFunc("/relay/profile", h.getProfile).Methods(http.MethodGet)
	r.HandleFunc("/relay/profile", h.upsertProfile).Methods(http.MethodPut)
	r.HandleFunc("/relay/profile", h.deleteProfile).Methods(http.MethodDelete)

	r.HandleFunc("/relay/announcements", h.listAnnouncements).Methods(http.MethodGet)

	// Unauthenticated public feed.
	r.HandleFunc("/relay/public", h.listPublic).Methods(http.MethodGet)
	r.HandleFunc("/relay/public/{id}", h.getPublicRequest).Methods(http.MethodGet)

	// Admin surface.
	admin := r.PathPrefix("/relay/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/requests", h.adminListRequests).Methods(http.MethodGet)
	admin.HandleFunc("/requests/{id}", h.adminDeleteRequest).Methods(http.MethodDelete)
	admin.HandleFunc("/fulfillments", h.adminListFulfillments).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.adminListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}/verify", h.adminVerifyUser).Methods(http.MethodPost)
	admin.HandleFunc("/profiles/{user_id}/verify", h.adminVerifyProfile).Methods(http.MethodPost)
	admin.HandleFunc("/announcements", h.adminCreateAnnouncement).Methods(http.MethodPost)
	admin.HandleFunc("/announcements", h.adminListAnnouncements).Methods(http.MethodGet)
	admin.HandleFunc("/announcements/{id}", h.adminUpdateAnnouncement).Methods(http.MethodPut)
	admin.HandleFunc("/announcements/{id}/deactivate", h.adminDeactivateAnnouncement).Methods(http.MethodPost)

	return r
}

// --- requests ---------------------------------------------------------------

func (h *handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
		TTLSeconds  *int64 `json:"ttl_seconds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	created, err := h.app.Requests.Create(r.Context(), middleware.GetUserID(r.Context()), requestsvc.CreateInput{
		Description: payload.Description,
		IsPublic:    payload.IsPublic,
		TTL:         ttlDuration(payload.TTLSeconds),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.app.Requests.List(r.Context(), middleware.GetUserID(r.Context()), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Requests.Get(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) updateRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	updated, err := h.app.Requests.Update(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], requestsvc.CreateInput{
		Description: payload.Description,
		IsPublic:    payload.IsPublic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) claimRequest(w http.ResponseWriter, r *http.Request) {
	req, ful, err := h.app.Requests.Claim(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request":     req,
		"fulfillment": ful,
	})
}

func (h *handler) cancelRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Requests.Cancel(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) repostRequest(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TTLSeconds *int64 `json:"ttl_seconds"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, errors.Validation("invalid request body"))
			return
		}
	}

	req, err := h.app.Requests.Repost(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], ttlDuration(payload.TTLSeconds))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- fulfillments -----------------------------------------------------------

func (h *handler) listFulfillments(w http.ResponseWriter, r *http.Request) {
	fuls, err := h.app.Requests.ListFulfillments(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fuls)
}

func (h *handler) getFulfillment(w http.ResponseWriter, r *http.Request) {
	ful, err := h.app.Requests.GetFulfillment(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ful)
}

func (h *handler) closeFulfillment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	ful, req, err := h.app.Requests.Close(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], relay.FulfillmentStatus(payload.Outcome))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fulfillment": ful,
		"request":     req,
	})
}

// --- messages ---------------------------------------------------------------

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	msg, err := h.app.Messages.Send(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"], payload.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.app.Messages.List(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- users and profiles -----------------------------------------------------

func (h *handler) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Ensure(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var payload usersvc.Input
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	userID := middleware.GetUserID(r.Context())
	if _, err := h.app.Users.Ensure(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.app.Users.Update(r.Context(), userID, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Profiles.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) upsertProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilesvc.Input
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	p, err := h.app.Profiles.Upsert(r.Context(), middleware.GetUserID(r.Context()), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Profiles.Delete(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- announcements ----------------------------------------------------------

func (h *handler) listAnnouncements(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Announcements.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- public feed ------------------------------------------------------------

// getPublicRequest serves one request on the unauthenticated surface. The
// service's visibility check hides anything non-public from anonymous callers.
func (h *handler) getPublicRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.app.Requests.Get(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) listPublic(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.app.Requests.ListPublic(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// --- admin ------------------------------------------------------------------

func (h *handler) adminListRequests(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.app.Requests.AdminList(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (h *handler) adminDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Requests.AdminDelete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) adminListFulfillments(w http.ResponseWriter, r *http.Request) {
	fuls, err := h.app.Requests.AdminListFulfillments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fuls)
}

func (h *handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.Users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *handler) adminVerifyUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Verified bool `json:"verified"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	u, err := h.app.Users.SetVerified(r.Context(), mux.Vars(r)["id"], payload.Verified)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) adminVerifyProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Verified bool `json:"verified"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	p, err := h.app.Profiles.SetVerified(r.Context(), mux.Vars(r)["user_id"], payload.Verified)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) adminCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var payload announcementsvc.Input
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	created, err := h.app.Announcements.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) adminListAnnouncements(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Announcements.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) adminUpdateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var payload announcementsvc.Input
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, errors.Validation("invalid request body"))
		return
	}

	updated, err := h.app.Announcements.Update(r.Context(), mux.Vars(r)["id"], payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) adminDeactivateAnnouncement(w http.ResponseWriter, r *http.Request) {
	updated, err := h.app.Announcements.Deactivate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// --- helpers ----------------------------------------------------------------

func pagination(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation(name + " must be an integer")
	}
	return value, nil
}

// ttlDuration converts an optional ttl_seconds field, preserving the
// distinction between an omitted field and an explicit zero.
func ttlDuration(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("request failed", err)
	}

	payload := map[string]any{
		"code":    serviceErr.Code,
		"message": serviceErr.Message,
	}
	if len(serviceErr.Details) > 0 {
		payload["details"] = serviceErr.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": payload})
}
