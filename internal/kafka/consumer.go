package kafka

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "kafka-consumer").Logger()

// Handler must return nil only when the message is fully processed and the
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	errs := make(chan error, c.workers)

	for i := 0; i < c.workers; i++ {
		go runWorker(ctx, jobs, errs, h, c.r.CommitMessages)
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}

		// drain worker errors without blocking the dispatch loop
		select {
		case e := <-errs:
			logger.Error().Err(e).Msg("worker error")
			time.Sleep(200 * time.Millisecond)
		default:
		}
	}
}

func runWorker(ctx context.Context, jobs <-chan kafka.Message, errs chan<- error, h Handler,
	commit func(context.Context, ...kafka.Message) error) {
	for m := range jobs {
		if err := h(ctx, m); err != nil {
			reportErr(errs, err)
			continue
		}
		if err := commit(ctx, m); err != nil {
			reportErr(errs, err)
		}
	}
}

// reportErr never blocks: once the dispatcher has exited nobody drains errs,
// and a blocked send would leak the worker.
func reportErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
		logger.Error().Err(err).Msg("worker error")
	}
}
