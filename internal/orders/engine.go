package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine runs order creation as a single atomic unit of work against the
// injected store: duplicate check, per-item stock verification, price
// accumulation, persistence and stock decrement either all commit or all
// roll back.
type Engine struct {
	Store Store
	Now   func() time.Time // defaults to time.Now().UTC
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateOrder executes the order transaction. The request must already have
// passed ValidateCreateOrder. On any failure the store rolls back and no
// order, item, or stock change survives.
func (e *Engine) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var out *Order

	err := e.Store.InTx(ctx, func(tx StoreTx) error {
		existing, err := tx.FindOrderByNumber(ctx, req.OrderNumber)
		if err != nil {
			return err
		}
		if existing != nil {
			return &DuplicateOrderError{OrderNumber: req.OrderNumber, PlacedAt: existing.CreatedAt}
		}

		total := decimal.Zero
		items := make([]OrderItem, 0, len(req.Items))

		for _, it := range req.Items {
			p, err := tx.FindProductForUpdate(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return &ProductNotFoundError{ProductID: it.ProductID}
			}
			if p.Stock < it.Qty {
				return &InsufficientStockError{ProductID: p.ID, Required: it.Qty, Available: p.Stock}
			}

			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
			items = append(items, OrderItem{
				ProductID: p.ID,
				Qty:       it.Qty,
				UnitPrice: p.Price,
				Product:   p,
			})

			// Decrement under the row lock. A later line item for the same
			// product re-reads the reduced stock and is checked against it.
			if err := tx.UpdateProductStock(ctx, p.ID, p.Stock-it.Qty); err != nil {
				return err
			}
			p.Stock -= it.Qty
		}

		o := &Order{
			ID:            uuid.NewString(),
			OrderNumber:   req.OrderNumber,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			TotalAmount:   total,
			CreatedAt:     e.now(),
		}
		if err := tx.InsertOrder(ctx, o, items); err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = o.ID
		}
		o.Items = items
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
