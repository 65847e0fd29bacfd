// Package api exposes the HTTP surface: subscription management, the
// VAPID public key, and operational stats.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/circuitbreaker"
	"github.com/zaidalbayati/minaret/internal/db"
)

// SubscriberRepository defines the interface for subscriber database operations
type SubscriberRepository interface {
	UpsertSubscriber(ctx context.Context, endpoint, p256dh, auth string, lat, lon *float64, timezone string) (*db.Subscriber, error)
	GetSubscriberByEndpoint(ctx context.Context, endpoint string) (*db.Subscriber, error)
	UpdateSubscriberLocation(ctx context.Context, endpoint string, lat, lon float64, timezone string) error
	DeleteSubscriber(ctx context.Context, endpoint string) error
	Stats(ctx context.Context) (*db.Stats, error)
}

// SchedulePlanner regenerates a single subscriber's schedule after a
// registration or location change.
type SchedulePlanner interface {
	ScheduleSubscriber(ctx context.Context, sub *db.Subscriber) (int, error)
}

// SubscribeRequest carries the browser's PushSubscription plus the
// subscriber's location.
type SubscribeRequest struct {
	Subscription struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	} `json:"subscription"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
}

// SubscribeResponse is returned after a successful registration.
type SubscribeResponse struct {
	ID        string `json:"id"`
	Scheduled int    `json:"scheduled"`
}

// UnsubscribeRequest identifies the subscription to remove.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// UpdateLocationRequest carries a subscriber's new coordinates.
type UpdateLocationRequest struct {
	Endpoint  string   `json:"endpoint"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timezone  string   `json:"timezone,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger          *zap.Logger
	repo            SubscriberRepository
	planner         SchedulePlanner
	vapidPublicKey  string
	defaultTimezone string
	breaker         *circuitbreaker.CircuitBreaker // nil if not wired
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, repo SubscriberRepository, planner SchedulePlanner, vapidPublicKey, defaultTimezone string) *Handler {
	return &Handler{
		logger:          logger,
		repo:            repo,
		planner:         planner,
		vapidPublicKey:  vapidPublicKey,
		defaultTimezone: defaultTimezone,
	}
}

// WithBreaker attaches the push circuit breaker for stats reporting.
func (h *Handler) WithBreaker(breaker *circuitbreaker.CircuitBreaker) *Handler {
	h.breaker = breaker
	return h
}

// Subscribe handles POST /api/subscribe. Registration is idempotent on
// the endpoint: re-subscribing updates keys and location in place and
// regenerates the schedule.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Subscription.Endpoint == "" || req.Subscription.Keys.P256dh == "" || req.Subscription.Keys.Auth == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing subscription fields",
			"subscription.endpoint, subscription.keys.p256dh, and subscription.keys.auth are required")
		return
	}

	if !strings.HasPrefix(req.Subscription.Endpoint, "https://") {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid endpoint", "endpoint must be an https URL")
		return
	}

	// Location is optional at registration; without it the subscriber
	// exists but gets no schedule.
	if (req.Latitude == nil) != (req.Longitude == nil) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Incomplete location",
			"latitude and longitude must be provided together")
		return
	}
	if req.Latitude != nil {
		if msg := validateCoordinates(*req.Latitude, *req.Longitude); msg != "" {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid location", msg)
			return
		}
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = h.defaultTimezone
	}

	sub, err := h.repo.UpsertSubscriber(ctx,
		req.Subscription.Endpoint,
		req.Subscription.Keys.P256dh,
		req.Subscription.Keys.Auth,
		req.Latitude, req.Longitude, timezone,
	)
	if err != nil {
		h.logger.Error("failed to upsert subscriber", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to register subscription", "")
		return
	}

	scheduled, err := h.planner.ScheduleSubscriber(ctx, sub)
	if err != nil {
		// The subscription is saved; the nightly pass will pick the
		// subscriber up even if the on-demand schedule failed.
		h.logger.Error("failed to schedule new subscriber",
			zap.Error(err),
			zap.String("subscriber_id", sub.ID.String()),
		)
	}

	h.logger.Info("subscriber registered",
		zap.String("subscriber_id", sub.ID.String()),
		zap.Bool("has_location", sub.HasLocation()),
		zap.Int("scheduled", scheduled),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(SubscribeResponse{
		ID:        sub.ID.String(),
		Scheduled: scheduled,
	})
}

// Unsubscribe handles POST /api/unsubscribe. Unknown endpoints get a
// success response too; the caller's goal state already holds.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}

	// Delete cascades to the pending schedule rows; the notification
	// log keeps its history.
	if err := h.repo.DeleteSubscriber(ctx, req.Endpoint); err != nil {
		h.logger.Error("failed to delete subscriber", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to unsubscribe", "")
		return
	}

	h.logger.Info("subscriber unsubscribed", zap.String("endpoint", req.Endpoint))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "unsubscribed"})
}

// UpdateLocation handles POST /api/update-location and regenerates the
// schedule for the new coordinates.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Endpoint == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint", "endpoint is required")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing location", "latitude and longitude are required")
		return
	}
	if msg := validateCoordinates(*req.Latitude, *req.Longitude); msg != "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid location", msg)
		return
	}

	if err := h.repo.UpdateSubscriberLocation(ctx, req.Endpoint, *req.Latitude, *req.Longitude, req.Timezone); err != nil {
		h.logger.Warn("location update for unknown endpoint", zap.Error(err))
		h.writeError(w, http.StatusNotFound, "not_found", "Subscription not found", "register before updating location")
		return
	}

	sub, err := h.repo.GetSubscriberByEndpoint(ctx, req.Endpoint)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load subscription", "")
		return
	}

	scheduled, err := h.planner.ScheduleSubscriber(ctx, sub)
	if err != nil {
		h.logger.Error("failed to reschedule after location update",
			zap.Error(err),
			zap.String("subscriber_id", sub.ID.String()),
		)
	}

	h.logger.Info("subscriber location updated",
		zap.String("subscriber_id", sub.ID.String()),
		zap.Int("scheduled", scheduled),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(SubscribeResponse{
		ID:        sub.ID.String(),
		Scheduled: scheduled,
	})
}

// VAPIDPublicKey handles GET /api/vapid-public-key. The browser needs
// this key to create the push subscription it then registers.
func (h *Handler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"publicKey": h.vapidPublicKey})
}

// GetStats handles GET /api/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.repo.Stats(ctx)
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load stats", "")
		return
	}

	resp := map[string]interface{}{
		"active_subscribers":    stats.ActiveSubscribers,
		"pending_notifications": stats.PendingNotifications,
		"sent_today":            stats.SentToday,
	}
	if h.breaker != nil {
		resp["push_breaker"] = h.breaker.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func validateCoordinates(lat, lon float64) string {
	if lat < -90 || lat > 90 {
		return "latitude must be between -90 and 90"
	}
	if lon < -180 || lon > 180 {
		return "longitude must be between -180 and 180"
	}
	return ""
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
