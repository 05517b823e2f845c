package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/chat"
)

// HandlerFunc processes one title job. A returned error dead-letters the
// delivery.
type HandlerFunc func(ctx context.Context, job chat.TitleJob) error

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         *zap.Logger
}

func NewConsumer(url, queue string, concurrency int, log *zap.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes the queue with a fixed worker pool until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	if err := c.ch.Qos(c.concurrency, 0, false); err != nil {
		return err
	}
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info("consumer started",
		zap.String("queue", c.queue),
		zap.Int("concurrency", c.concurrency),
	)

	jobs := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job chat.TitleJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.ConversationID == "" {
					c.log.Warn("bad message",
						zap.Int("worker", workerID),
						zap.Error(err),
					)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handle(ctx, job); err != nil {
					c.log.Warn("job failed",
						zap.Int("worker", workerID),
						zap.String("conversation_id", job.ConversationID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err),
					)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					c.log.Warn("ack failed",
						zap.Int("worker", workerID),
						zap.String("conversation_id", job.ConversationID),
						zap.Error(err),
					)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				c.log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return nil
			}
			jobs <- d
		}
	}
}
