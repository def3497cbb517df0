package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/auralforge/auralforge/internal/auth"
	"github.com/auralforge/auralforge/internal/handler/dto"
	"github.com/auralforge/auralforge/internal/middleware"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/service"
)

// IdempotencyKeyHeader lets clients retry a submission without creating a
// second job.
const IdempotencyKeyHeader = "Idempotency-Key"

// JobService is the job logic behind JobHandler.
type JobService interface {
	SubmitTTS(ctx context.Context, ac *model.AuthContext, in service.TTSInput) (*service.Submission, error)
	SubmitSTT(ctx context.Context, ac *model.AuthContext, in service.STTInput) (*service.Submission, error)
	SubmitClone(ctx context.Context, ac *model.AuthContext, in service.CloneInput) (*service.Submission, error)
	Get(ctx context.Context, teamID, id string) (*model.Job, error)
	List(ctx context.Context, teamID string, in service.ListJobsInput) (*service.JobPage, error)
	Asset(ctx context.Context, teamID, jobID string) (*service.Asset, error)
	ListVoices(ctx context.Context, teamID string) ([]*model.VoiceClone, error)
}

// JobHandler handles job submission, polling and asset download.
type JobHandler struct {
	svc    JobService
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(svc JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{svc: svc, logger: logger}
}

// Synthesize handles POST /v1/tts/synthesize.
func (h *JobHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req dto.SynthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "text: "+err.Error())
		return
	}
	opts, ok := h.submitOptions(w, r, req.ProjectID, req.CallbackURL)
	if !ok {
		return
	}

	h.submit(w, r, func(ctx context.Context, ac *model.AuthContext) (*service.Submission, error) {
		return h.svc.SubmitTTS(ctx, ac, service.TTSInput{
			SubmitOptions: opts,
			Text:          req.Text,
			VoiceID:       req.VoiceID,
			Language:      req.Language,
			Format:        req.Format,
			Speed:         req.Speed,
			Pitch:         req.Pitch,
		})
	})
}

// Transcribe handles POST /v1/stt/transcribe.
func (h *JobHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req dto.TranscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	opts, ok := h.submitOptions(w, r, req.ProjectID, req.CallbackURL)
	if !ok {
		return
	}

	h.submit(w, r, func(ctx context.Context, ac *model.AuthContext) (*service.Submission, error) {
		return h.svc.SubmitSTT(ctx, ac, service.STTInput{
			SubmitOptions: opts,
			Language:      req.Language,
			SourceJobID:   req.SourceJobID,
			AudioURL:      req.AudioURL,
		})
	})
}

// Clone handles POST /v1/voices/clone.
func (h *JobHandler) Clone(w http.ResponseWriter, r *http.Request) {
	var req dto.CloneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "name: "+err.Error())
		return
	}
	opts, ok := h.submitOptions(w, r, req.ProjectID, req.CallbackURL)
	if !ok {
		return
	}

	h.submit(w, r, func(ctx context.Context, ac *model.AuthContext) (*service.Submission, error) {
		return h.svc.SubmitClone(ctx, ac, service.CloneInput{
			SubmitOptions: opts,
			Name:          req.Name,
			SampleJobID:   req.SampleJobID,
			SampleURL:     req.SampleURL,
		})
	})
}

// submitOptions validates the fields every submission shares.
func (h *JobHandler) submitOptions(w http.ResponseWriter, r *http.Request, projectID, callbackURL string) (service.SubmitOptions, bool) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if err := middleware.ValidateIdempotencyKey(key); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", IdempotencyKeyHeader+": "+err.Error())
		return service.SubmitOptions{}, false
	}
	if err := middleware.ValidateCallbackURLLength(callbackURL); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "callbackUrl: "+err.Error())
		return service.SubmitOptions{}, false
	}
	return service.SubmitOptions{
		ProjectID:      projectID,
		CallbackURL:    callbackURL,
		IdempotencyKey: key,
	}, true
}

// submit runs a submission and writes 202 for a new job or 200 when an
// Idempotency-Key replayed an earlier one.
func (h *JobHandler) submit(w http.ResponseWriter, r *http.Request, fn func(context.Context, *model.AuthContext) (*service.Submission, error)) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	sub, err := fn(r.Context(), authCtx)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if !sub.Created {
		status = http.StatusOK
	}
	h.logger.Info("job_submitted",
		slog.String("job_id", sub.Job.ID),
		slog.String("type", string(sub.Job.Type)),
		slog.String("team_id", sub.Job.TeamID),
		slog.Bool("replayed", !sub.Created),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	)
	writeJSON(w, status, dto.ToSubmitResponse(sub.Job))
}

// Get handles GET /v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), auth.TeamIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job.ToResponse())
}

// List handles GET /v1/jobs.
// Query params: limit, cursor, type, status, projectId.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := service.ListJobsInput{
		ProjectID: q.Get("projectId"),
		Type:      q.Get("type"),
		Status:    q.Get("status"),
		Cursor:    q.Get("cursor"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit: must be a positive integer")
			return
		}
		in.Limit = limit
	}

	page, err := h.svc.List(r.Context(), auth.TeamIDFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToJobListResponse(page))
}

// Asset handles GET /v1/assets/{jobId}/audio by streaming the stored object.
func (h *JobHandler) Asset(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	asset, err := h.svc.Asset(r.Context(), auth.TeamIDFromContext(r.Context()), jobID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	defer asset.Body.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	if asset.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(asset.ContentLength, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, asset.Body); err != nil {
		h.logger.Warn("asset stream interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// Voices handles GET /v1/voices.
func (h *JobHandler) Voices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.svc.ListVoices(r.Context(), auth.TeamIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if voices == nil {
		voices = []*model.VoiceClone{}
	}
	writeJSON(w, http.StatusOK, voices)
}
