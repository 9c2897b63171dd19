package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	kafkax "github.com/ariefcatur/go-shop-api.git/internal/kafka"
	"github.com/ariefcatur/go-shop-api.git/internal/orders"
	"github.com/ariefcatur/go-shop-api.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "httpx").Logger()

// OrderPlacer is the slice of the engine the handler needs.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
}

// OrderGetter loads a committed order for reads.
type OrderGetter interface {
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
}

type OrdersHandler struct {
	Engine   OrderPlacer
	Reader   OrderGetter
	Producer *kafkax.Producer
	Redis    *redis.Client
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var (
		inv  *orders.InvalidRequestError
		dup  *orders.DuplicateOrderError
		nf   *orders.ProductNotFoundError
		insf *orders.InsufficientStockError
	)
	switch {
	case errors.As(err, &inv):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": inv.Error()})
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, map[string]string{"error": dup.Error()})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Error(), "product_id": nf.ProductID})
	case errors.As(err, &insf):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": insf.Error(), "product_id": insf.ProductID})
	default:
		logger.Error().Err(err).Msg("order request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error, safe to retry"})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	req, err := orders.ValidateCreateOrder(req)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	// cache the committed order so GET is cheap
	if b, err := json.Marshal(o); err == nil {
		key := fmt.Sprintf(redisx.KeyOrder, o.ID)
		_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
	}

	h.publishPlaced(r, o)
	writeJSON(w, http.StatusCreated, o)
}

// publishPlaced emits OrderPlaced after commit. Fire-and-forget: the order is
// durable already, downstream consumers catch up from the topic.
func (h *OrdersHandler) publishPlaced(r *http.Request, o *orders.Order) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(orders.NewOrderPlacedPayload(o)),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Reader.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if b, err := json.Marshal(o); err == nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
	}
	writeJSON(w, http.StatusOK, o)
}
