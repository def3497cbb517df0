package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/auralforge/auralforge/internal/model"
)

// ClaimLease is how long a claimed notification stays invisible to other
// pollers while it is being delivered.
const ClaimLease = 2 * time.Minute

const maxErrorLen = 500

var dueStatuses = []string{string(model.DeliveryStatusPending), string(model.DeliveryStatusFailed)}

const notificationColumns = `
	id, job_id, event_type, callback_url, payload_json, status,
	attempt_count, max_attempts, next_retry_at, last_attempt_at,
	last_http_status, last_error, created_at, updated_at`

// Repository stores job notifications through database/sql.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps a lib/pq handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a notification. A second notification for the same job
// and event returns ErrNotificationExists.
func (r *Repository) Create(ctx context.Context, n *model.JobNotification) error {
	query := `
		INSERT INTO job_notifications (
			id, job_id, event_type, callback_url, payload_json, status,
			attempt_count, max_attempts, next_retry_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id, event_type) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.JobID,
		string(n.EventType),
		n.CallbackURL,
		n.PayloadJSON,
		string(n.Status),
		n.AttemptCount,
		n.MaxAttempts,
		n.NextRetryAt,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job notification: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationExists
	}
	return nil
}

// Get returns one notification by id.
func (r *Repository) Get(ctx context.Context, id string) (*model.JobNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM job_notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job notification: %w", err)
	}
	return n, nil
}

// ListByJob returns every notification written for a job.
func (r *Repository) ListByJob(ctx context.Context, jobID string) ([]*model.JobNotification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM job_notifications
		WHERE job_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("query notifications by job: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ClaimDue locks up to limit due notifications and pushes their
// next_retry_at forward by ClaimLease, so concurrent pollers skip them.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.JobNotification, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + notificationColumns + `
		FROM job_notifications
		WHERE status = ANY($1) AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, query, pq.Array(dueStatuses), now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	claimed, err := collectNotifications(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	ids := make([]string, len(claimed))
	for i, n := range claimed {
		ids[i] = n.ID
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE job_notifications SET next_retry_at = $2, updated_at = $3 WHERE id = ANY($1)`,
		pq.Array(ids), now.Add(ClaimLease), now,
	); err != nil {
		return nil, fmt.Errorf("lease notifications: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// MarkDelivered records a successful attempt.
func (r *Repository) MarkDelivered(ctx context.Context, id string, httpStatus int, at time.Time) error {
	query := `
		UPDATE job_notifications
		SET status = 'success',
			attempt_count = attempt_count + 1,
			last_attempt_at = $2,
			last_http_status = $3,
			last_error = NULL,
			updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, at, httpStatus)
	if err != nil {
		return fmt.Errorf("update notification success: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkFailed records a failed attempt and either schedules the next one or,
// when exhausted, parks the notification for good.
func (r *Repository) MarkFailed(ctx context.Context, id string, httpStatus *int, errMsg string, at, nextRetryAt time.Time, exhausted bool) error {
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	errMsg = truncateError(errMsg)

	query := `
		UPDATE job_notifications
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_attempt_at = $3,
			last_http_status = $4,
			last_error = $5,
			next_retry_at = $6,
			updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, string(status), at, httpStatus, errMsg, nextRetryAt)
	if err != nil {
		return fmt.Errorf("update notification failure: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// PendingCount returns how many notifications still await delivery.
func (r *Repository) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM job_notifications WHERE status = ANY($1)`,
		pq.Array(dueStatuses),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending notifications: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.JobNotification, error) {
	var (
		n         model.JobNotification
		eventType string
		status    string
		lastCode  sql.NullInt64
		lastError sql.NullString
		lastAt    sql.NullTime
	)
	if err := row.Scan(
		&n.ID,
		&n.JobID,
		&eventType,
		&n.CallbackURL,
		&n.PayloadJSON,
		&status,
		&n.AttemptCount,
		&n.MaxAttempts,
		&n.NextRetryAt,
		&lastAt,
		&lastCode,
		&lastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	n.EventType = model.EventType(eventType)
	n.Status = model.DeliveryStatus(status)
	if lastAt.Valid {
		t := lastAt.Time
		n.LastAttemptAt = &t
	}
	if lastCode.Valid {
		code := int(lastCode.Int64)
		n.LastHTTPStatus = &code
	}
	if lastError.Valid {
		msg := lastError.String
		n.LastError = &msg
	}
	return &n, nil
}

func collectNotifications(rows *sql.Rows) ([]*model.JobNotification, error) {
	var out []*model.JobNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// truncateError caps a delivery error at maxErrorLen bytes without splitting
// a rune.
func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return strings.ToValidUTF8(msg, "")
}
