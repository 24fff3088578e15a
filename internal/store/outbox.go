package store

import (
	"context"
	"fmt"

	"pos-service/internal/models"
)

const outboxColumns = `id, event_type, aggregate_id, payload, created_at`

// OrderChangeFunc builds the outbox message for an order whose status was just changed.
// It runs inside the transaction of the change.
type OrderChangeFunc func(order *models.Order) (*models.OutboxMessage, error)

func insertOutbox(ctx context.Context, tx execer, msgs ...*models.OutboxMessage) error {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		// jsonb takes text; a []byte argument would be sent as bytea
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO outbox ("+outboxColumns+") VALUES ($1, $2, $3, $4, $5)",
			msg.ID, msg.EventType, msg.AggregateID, string(msg.Payload), msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to write outbox message %s: %w", msg.ID, err)
		}
	}
	return nil
}

// FetchOutbox returns up to limit pending messages in the order they were written
func (s *Store) FetchOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	msgs := []models.OutboxMessage{}
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT "+outboxColumns+" FROM outbox ORDER BY seq LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	return msgs, nil
}

// DeleteOutbox removes a message once it has been relayed
func (s *Store) DeleteOutbox(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete outbox message %s: %w", id, err)
	}
	return nil
}
