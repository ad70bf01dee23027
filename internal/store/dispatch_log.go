package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/capi-relay/internal/domain"
)

// DispatchRecord holds data for inserting a dispatch attempt.
type DispatchRecord struct {
	EventID        string
	EventName      string
	PixelID        string
	Status         string
	HTTPStatusCode int
	ErrorKind      string
	RemoteMessage  string
	ResponseTimeMs int
}

// DispatchSummary aggregates the dispatch log.
type DispatchSummary struct {
	Total         int     `json:"total"`
	SuccessCount  int     `json:"success_count"`
	FailedCount   int     `json:"failed_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// RecordDispatch inserts one attempt into the dispatch log.
func (s *PostgresStore) RecordDispatch(ctx context.Context, rec DispatchRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dispatch_attempts (event_id, event_name, pixel_id, status, http_status_code, error_kind, remote_message, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.EventID, rec.EventName, rec.PixelID, rec.Status,
		nullableInt(rec.HTTPStatusCode), nullableString(rec.ErrorKind), nullableString(rec.RemoteMessage), rec.ResponseTimeMs)
	if err != nil {
		return fmt.Errorf("inserting dispatch attempt: %w", err)
	}
	return nil
}

// ListDispatches returns recent attempts, newest first, optionally filtered.
func (s *PostgresStore) ListDispatches(ctx context.Context, eventName, status string, limit int) ([]domain.DispatchAttempt, error) {
	query := `SELECT id, event_id, event_name, pixel_id, status, http_status_code, error_kind, remote_message, response_time_ms, created_at FROM dispatch_attempts`
	args := []interface{}{}
	var conditions []string

	if eventName != "" {
		args = append(args, eventName)
		conditions = append(conditions, fmt.Sprintf("event_name = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying dispatch attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.DispatchAttempt{}
	for rows.Next() {
		var a domain.DispatchAttempt
		err := rows.Scan(&a.ID, &a.EventID, &a.EventName, &a.PixelID, &a.Status,
			&a.HTTPStatusCode, &a.ErrorKind, &a.RemoteMessage, &a.ResponseTimeMs, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning dispatch attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispatch attempts: %w", err)
	}

	return attempts, nil
}

// Summary returns aggregated dispatch statistics.
func (s *PostgresStore) Summary(ctx context.Context) (*DispatchSummary, error) {
	var m DispatchSummary

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'success') AS success,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(AVG(response_time_ms) FILTER (WHERE response_time_ms > 0), 0) AS avg_response_ms
		FROM dispatch_attempts
	`).Scan(&m.Total, &m.SuccessCount, &m.FailedCount, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying dispatch summary: %w", err)
	}

	if m.Total > 0 {
		m.SuccessRate = float64(m.SuccessCount) / float64(m.Total) * 100
	}

	return &m, nil
}
