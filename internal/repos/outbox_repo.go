package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OutboxEvent is a domain event waiting to be published.
type OutboxEvent struct {
	ID      int64  `db:"id"`
	EventID string `db:"event_id"`
	Topic   string `db:"topic"`
	Key     string `db:"key"`
	Payload []byte `db:"payload"`
}

// OutboxRepo stores events in the same transaction as the state change that produced them.
type OutboxRepo struct{}

func NewOutboxRepo() *OutboxRepo { return &OutboxRepo{} }

func (r *OutboxRepo) Append(ctx context.Context, q sqlx.ExecerContext, topic, key string, payload []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox(event_id, topic, key, payload, created_at) VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), topic, key, string(payload), stamp(time.Now()))
	if err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return nil
}

// Pending returns up to limit unsent events, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context, q sqlx.QueryerContext, limit int) ([]OutboxEvent, error) {
	events := []OutboxEvent{}
	if err := sqlx.SelectContext(ctx, q, &events, `
		SELECT id, event_id, topic, key, payload FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("pending outbox: %w", err)
	}
	return events, nil
}

func (r *OutboxRepo) MarkSent(ctx context.Context, q sqlx.ExecerContext, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE outbox SET sent_at = ? WHERE id IN (?)`, stamp(time.Now()), ids)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}
