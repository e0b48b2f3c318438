package postgres

import (
	"context"
	"fmt"
	"time"
)

// RequestLogEntry is one completed request, recorded for auditing.
type RequestLogEntry struct {
	ID         string
	Model      string
	Strategy   string
	Outcome    string
	Category   string
	Attempts   int
	DurationMs int64
	CreatedAt  time.Time
}

// RequestLogRepo persists completed requests.
type RequestLogRepo struct {
	db *DB
}

// NewRequestLogRepo creates a new request log repository.
func NewRequestLogRepo(db *DB) *RequestLogRepo {
	return &RequestLogRepo{db: db}
}

// Insert records one completed request.
func (r *RequestLogRepo) Insert(ctx context.Context, e RequestLogEntry) error {
	query := `
		INSERT INTO request_log (id, model, strategy, outcome, category, attempts, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Model, e.Strategy, e.Outcome, e.Category, e.Attempts, e.DurationMs, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (r *RequestLogRepo) Recent(ctx context.Context, limit int) ([]RequestLogEntry, error) {
	query := `
		SELECT id, model, strategy, outcome, category, attempts, duration_ms, created_at
		FROM request_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	var entries []RequestLogEntry
	for rows.Next() {
		var e RequestLogEntry
		if err := rows.Scan(&e.ID, &e.Model, &e.Strategy, &e.Outcome, &e.Category,
			&e.Attempts, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan deletes entries created before the cutoff and returns
// the number removed.
func (r *RequestLogRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM request_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge request log: %w", err)
	}
	return res.RowsAffected()
}
