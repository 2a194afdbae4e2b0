package outbox

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/sea021/promptshop-go/pkg/kafka"
)

// Poller drains pending outbox rows into Kafka. Rows are only marked sent
// after a successful publish, so delivery is at-least-once and consumers
// must dedupe on event_id.
type Poller struct {
	pool      *pgxpool.Pool
	writer    *kafkago.Writer
	tick      time.Duration
	batchSize int
}

func NewPoller(pool *pgxpool.Pool, client *kafka.Client, topic string) *Poller {
	return &Poller{
		pool:      pool,
		writer:    client.NewWriter(topic),
		tick:      time.Second,
		batchSize: 100,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer p.writer.Close()
	for {
		select {
		case <-ticker.C:
			p.drain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	records, err := FetchPending(ctx, p.pool, p.batchSize)
	if err != nil {
		log.Printf("outbox fetch error: %v", err)
		return
	}
	for _, rec := range records {
		msg := kafkago.Message{
			Key:   []byte(rec.Key),
			Value: rec.Payload,
			Time:  rec.CreatedAt,
			Headers: []kafkago.Header{
				{Key: "event_id", Value: []byte(rec.EventID)},
			},
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("outbox publish error id=%d: %v", rec.ID, err)
			continue
		}
		if err := MarkSent(ctx, p.pool, rec.ID); err != nil {
			log.Printf("outbox mark sent error id=%d: %v", rec.ID, err)
		}
	}
}
