package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/webhook"
)

// maxWebhookBody caps inbound webhook bodies read by the stubs.
const maxWebhookBody = 64 << 10

// NotificationLister reads the callback deliveries of a job.
type NotificationLister interface {
	ListByJob(ctx context.Context, jobID string) ([]*model.JobNotification, error)
}

// WebhookHandler serves the inbound webhook stubs and the delivery log of
// job callbacks.
type WebhookHandler struct {
	jobs          JobService
	notifications NotificationLister
	secret        string
	logger        *slog.Logger
	now           func() time.Time
}

// NewWebhookHandler creates a new webhook handler. secret verifies signed
// requests to the jobs stub and may be empty.
func NewWebhookHandler(jobs JobService, notifications NotificationLister, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		jobs:          jobs,
		notifications: notifications,
		secret:        secret,
		logger:        logger.With("handler", "webhook"),
		now:           time.Now,
	}
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// Stripe handles POST /v1/webhooks/stripe. Billing events are accepted and
// logged only.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	h.logger.Info("stripe webhook received",
		slog.Int("bytes", len(body)),
		slog.Bool("signed", r.Header.Get("Stripe-Signature") != ""),
	)
	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

// Jobs handles POST /v1/webhooks/jobs. It accepts every request and logs
// whether a signed callback verified against the configured secret, which
// makes it usable as a loopback target when testing callbacks.
func (h *WebhookHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	log := h.logger.With(
		slog.String("delivery_id", r.Header.Get(webhook.HeaderDeliveryID)),
		slog.String("event", r.Header.Get(webhook.HeaderEvent)),
	)

	signature := r.Header.Get(webhook.HeaderSignature)
	if h.secret == "" || signature == "" {
		log.Info("job webhook received", slog.Bool("verified", false))
		writeJSON(w, http.StatusOK, receivedResponse{Received: true})
		return
	}

	ts, err := strconv.ParseInt(r.Header.Get(webhook.HeaderTimestamp), 10, 64)
	if err == nil {
		err = webhook.Verify(h.secret, signature, ts, body, webhook.DefaultReplayWindow, h.now())
	}
	if err != nil {
		log.Warn("job webhook signature rejected", slog.String("error", err.Error()))
	} else {
		log.Info("job webhook received", slog.Bool("verified", true))
	}
	writeJSON(w, http.StatusOK, receivedResponse{Received: true})
}

// Deliveries handles GET /v1/jobs/{id}/notifications.
func (h *WebhookHandler) Deliveries(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), auth.TeamIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	notifications, err := h.notifications.ListByJob(r.Context(), job.ID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	resp := make([]model.NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, n.ToResponse())
	}
	writeJSON(w, http.StatusOK, resp)
}
