package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tumaini/tikiti/internal/adapters/crdb"
	"github.com/tumaini/tikiti/internal/adapters/rabbit"
	"github.com/tumaini/tikiti/internal/observability"
)

// Publisher drains NEW outbox rows to the broker. Events were committed
// atomically with the state changes they describe, so a reconciliation
// outcome reaches downstream consumers even when the webhook was already
// acknowledged.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, 50)
	if err != nil {
		p.logger.Error("failed to read outbox", err)
		return
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithField("outbox_id", rec.ID.String()).Error("failed to publish outbox record", err)
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithField("outbox_id", rec.ID.String()).Error("failed to mark outbox record published", err)
			continue
		}
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
	}
}
