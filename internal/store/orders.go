package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// MarkOrderTracked records that a Purchase was sent for orderID. It returns
// false when the order was already tracked.
func (s *PostgresStore) MarkOrderTracked(ctx context.Context, orderID, eventID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tracked_orders (order_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING 1
	`, orderID, eventID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("marking order %s tracked: %w", orderID, err)
}
