package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	kafkax "github.com/ariefcatur/go-shop-api.git/internal/kafka"
	"github.com/ariefcatur/go-shop-api.git/internal/orders"
	"github.com/ariefcatur/go-shop-api.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "notifier").Logger()

// Service consumes OrderPlaced events after commit and fans out the
// confirmation: dedup by event id, then a structured confirmation log
// (stand-in for the email sender). It never touches order or stock state.
type Service struct {
	Redis       *redis.Client
	ServiceName string
}

func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil // ignore
	}

	// at-least-once delivery; claim the event id so redeliveries are no-ops
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	claimed, err := redisx.Claim(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	logger.Info().
		Str("order_id", p.OrderID).
		Str("order_number", p.OrderNumber).
		Str("customer_email", p.CustomerEmail).
		Str("total_amount", p.TotalAmount).
		Int("items", len(p.Items)).
		Msg("order confirmation sent")
	return nil
}
