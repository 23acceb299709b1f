package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bazaar/internal/repos"
)

// OutboxPoller moves committed outbox rows to the publisher. Delivery is at least
// once: a row is marked sent only after Publish succeeds.
type OutboxPoller struct {
	tm     *repos.TxManager
	outbox *repos.OutboxRepo
	pub    Publisher
	tick   time.Duration
	batch  int
	logger *zap.Logger
}

func NewOutboxPoller(tm *repos.TxManager, outbox *repos.OutboxRepo, pub Publisher, tick time.Duration, logger *zap.Logger) *OutboxPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &OutboxPoller{tm: tm, outbox: outbox, pub: pub, tick: tick, batch: 100, logger: logger}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil {
				p.logger.Warn("outbox flush failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes one batch of pending events and returns how many were sent.
func (p *OutboxPoller) Flush(ctx context.Context) (int, error) {
	events, err := p.outbox.Pending(ctx, p.tm.DB(), p.batch)
	if err != nil {
		return 0, err
	}
	sent := make([]int64, 0, len(events))
	for _, ev := range events {
		if err := p.pub.Publish(ctx, ev.Topic, ev.Key, ev.Payload); err != nil {
			p.logger.Warn("publish event failed", zap.String("event_id", ev.EventID), zap.Error(err))
			break
		}
		sent = append(sent, ev.ID)
	}
	if err := p.outbox.MarkSent(ctx, p.tm.DB(), sent); err != nil {
		return 0, err
	}
	return len(sent), nil
}
