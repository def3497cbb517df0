// Command webhook-receiver is a minimal endpoint for AuralForge job callbacks.
//
// Usage:
//
//	export WEBHOOK_SIGNING_SECRET="..."   # same value the worker signs with
//	go run ./docs/examples/webhook-receiver
//
// Then submit jobs with "callbackUrl": "https://your-host:9000/callback".
package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/webhook"
)

const maxBody = 1 << 20

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	secret := os.Getenv("WEBHOOK_SIGNING_SECRET")
	if secret == "" {
		logger.Error("WEBHOOK_SIGNING_SECRET environment variable is required")
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Post("/callback", callbackHandler(secret, logger))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	logger.Info("starting webhook receiver", "addr", ":9000", "endpoint", "http://localhost:9000/callback")
	srv := &http.Server{Addr: ":9000", Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func callbackHandler(secret string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		ts, err := strconv.ParseInt(r.Header.Get(webhook.HeaderTimestamp), 10, 64)
		if err != nil {
			http.Error(w, "missing timestamp", http.StatusUnauthorized)
			return
		}
		sig := r.Header.Get(webhook.HeaderSignature)
		if err := webhook.Verify(secret, sig, ts, body, webhook.DefaultReplayWindow, time.Now()); err != nil {
			logger.Warn("rejected callback", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		var payload model.CallbackPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}

		// Deliveries are retried, so the same delivery ID can arrive twice.
		logger.Info("job callback",
			"delivery_id", r.Header.Get(webhook.HeaderDeliveryID),
			"event", payload.EventType,
			"job_id", payload.Job.ID,
			"type", payload.Job.Type,
			"status", payload.Job.Status,
		)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
	}
}
