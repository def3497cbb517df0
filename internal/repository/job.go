package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrJobNotFound is returned when a job does not exist or belongs to another team.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidCursor is returned for a malformed pagination cursor.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

const jobColumns = `id, team_id, project_id, type, status, queue_name, queue_job_id, requested_by,
	voice_id, language, format, input_text, params, result, result_url, s3_path, error,
	attempts, idempotency_key, callback_url, created_at, updated_at, started_at, completed_at`

// JobCursor marks the last job of a page in (created_at DESC, id DESC) order.
type JobCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// EncodeJobCursor encodes a cursor to opaque base64.
func EncodeJobCursor(c *JobCursor) string {
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeJobCursor decodes a cursor produced by EncodeJobCursor.
func DecodeJobCursor(s string) (*JobCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c JobCursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// JobFilter narrows ListJobs. Zero values mean no filter.
type JobFilter struct {
	TeamID    string
	ProjectID string
	Status    model.JobStatus
	Type      model.JobType
	After     *JobCursor
	Limit     int
}

// CreateJob inserts a queued job. When the team already has a job with the
// same idempotency key, that job is returned and created is false.
func (r *Repository) CreateJob(ctx context.Context, job *model.Job) (existing *model.Job, created bool, err error) {
	params := job.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO jobs (id, team_id, project_id, type, status, queue_name, requested_by,
			voice_id, language, format, input_text, params, idempotency_key, callback_url,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`,
		job.ID, job.TeamID, job.ProjectID, job.Type, job.Status, job.QueueName, job.RequestedBy,
		job.VoiceID, job.Language, job.Format, job.InputText, []byte(params), job.IdempotencyKey,
		job.CallbackURL, job.CreatedAt,
	)
	if err == nil {
		job.UpdatedAt = job.CreatedAt
		return job, true, nil
	}

	if isUniqueViolation(err) && job.IdempotencyKey != nil {
		prior, getErr := scanJob(r.pool.QueryRow(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE team_id = $1 AND idempotency_key = $2`,
			job.TeamID, *job.IdempotencyKey))
		if getErr != nil {
			return nil, false, getErr
		}
		return prior, false, nil
	}

	return nil, false, fmt.Errorf("failed to create job: %w", err)
}

// GetJob retrieves a job by ID regardless of team. Workers use this.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetJobForTeam retrieves a job only if it belongs to the team.
func (r *Repository) GetJobForTeam(ctx context.Context, teamID, id string) (*model.Job, error) {
	return scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND team_id = $2`, id, teamID))
}

// ListJobs returns up to filter.Limit jobs, newest first.
func (r *Repository) ListJobs(ctx context.Context, filter JobFilter) ([]*model.Job, error) {
	var (
		conds = []string{"team_id = $1"}
		args  = []any{filter.TeamID}
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ProjectID != "" {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.After != nil {
		args = append(args, filter.After.CreatedAt, filter.After.ID)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		jobColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// SetQueueJobID records the stream entry ID assigned at enqueue time.
func (r *Repository) SetQueueJobID(ctx context.Context, id, queueJobID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET queue_job_id = $2, updated_at = now() WHERE id = $1
	`, id, queueJobID)
	if err != nil {
		return fmt.Errorf("failed to set queue job id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkProcessing moves a queued job to processing and counts the attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id string) (*model.Job, error) {
	return r.transition(ctx, id, model.JobStatusProcessing,
		`attempts = attempts + 1, started_at = COALESCE(started_at, now())`)
}

// CompleteJob stores the result of a processing job.
func (r *Repository) CompleteJob(ctx context.Context, id string, result json.RawMessage, resultURL, s3Path *string) (*model.Job, error) {
	return r.transition(ctx, id, model.JobStatusCompleted,
		`result = $4, result_url = $5, s3_path = $6, error = NULL, completed_at = now()`,
		[]byte(result), resultURL, s3Path)
}

// FailJob marks a queued or processing job as failed.
func (r *Repository) FailJob(ctx context.Context, id, reason string) (*model.Job, error) {
	return r.transition(ctx, id, model.JobStatusFailed, `error = $4, completed_at = now()`, reason)
}

// RequeueJob returns a processing job to queued for another attempt.
// The last error is kept for visibility while the job waits.
func (r *Repository) RequeueJob(ctx context.Context, id, lastError string) (*model.Job, error) {
	return r.transition(ctx, id, model.JobStatusQueued, `error = $4`, lastError)
}

// ReleaseStaleJob returns an abandoned processing job to queued and clears
// its stream id, so the unqueued sweep picks it up if re-enqueueing fails.
func (r *Repository) ReleaseStaleJob(ctx context.Context, id, lastError string) (*model.Job, error) {
	return r.transition(ctx, id, model.JobStatusQueued, `queue_job_id = NULL, error = $4`, lastError)
}

// ListUnqueuedJobs returns queued jobs that never received a stream entry
// and were created before olderThan.
func (r *Repository) ListUnqueuedJobs(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'queued' AND queue_job_id IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unqueued jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unqueued jobs: %w", err)
	}
	return jobs, nil
}

// ListStaleProcessingJobs returns processing jobs untouched since before
// updatedBefore, oldest first. Their worker died without releasing them.
func (r *Repository) ListStaleProcessingJobs(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale jobs: %w", err)
	}
	return jobs, nil
}

// transition runs a compare-and-set update guarded by the statuses that
// may move to `to`. set holds the extra assignments; its placeholders
// start at $4. When no row matches, it tells a missing job apart from one
// in the wrong state.
func (r *Repository) transition(ctx context.Context, id string, to model.JobStatus, set string, args ...any) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, ` + set + `, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + jobColumns
	args = append([]any{id, string(to), model.StatusesInto(to)}, args...)

	job, err := scanJob(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	current, getErr := r.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if err := model.CheckTransition(current.Status, to); err != nil {
		return nil, err
	}
	// Allowed edge but the row moved under us between the update and the read.
	return nil, fmt.Errorf("%w: %s changed concurrently", model.ErrInvalidTransition, id)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job    model.Job
		params []byte
		result []byte
	)
	err := row.Scan(
		&job.ID,
		&job.TeamID,
		&job.ProjectID,
		&job.Type,
		&job.Status,
		&job.QueueName,
		&job.QueueJobID,
		&job.RequestedBy,
		&job.VoiceID,
		&job.Language,
		&job.Format,
		&job.InputText,
		&params,
		&result,
		&job.ResultURL,
		&job.S3Path,
		&job.Error,
		&job.Attempts,
		&job.IdempotencyKey,
		&job.CallbackURL,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	if len(params) > 0 {
		job.Params = json.RawMessage(params)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return &job, nil
}
