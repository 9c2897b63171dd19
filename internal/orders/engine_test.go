package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeStore serializes transactions with a mutex, which is what row-level
// locking gives the real store for conflicting orders. A failed callback
// restores the pre-transaction snapshot, so rollback semantics hold.
type fakeStore struct {
	mu        sync.Mutex
	products  map[string]*Product
	orders    map[string]*Order // by order number
	items     map[string][]OrderItem
	insertErr error // injected fault for atomicity tests
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]*Product{},
		orders:   map[string]*Order{},
		items:    map[string][]OrderItem{},
	}
}

func (s *fakeStore) addProduct(id, price string, stock int) {
	s.products[id] = &Product{
		ID:    id,
		SKU:   "SKU-" + id,
		Name:  "product " + id,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}
}

func (s *fakeStore) snapshot() (map[string]*Product, map[string]*Order, map[string][]OrderItem) {
	ps := make(map[string]*Product, len(s.products))
	for k, v := range s.products {
		cp := *v
		ps[k] = &cp
	}
	os := make(map[string]*Order, len(s.orders))
	for k, v := range s.orders {
		cp := *v
		os[k] = &cp
	}
	is := make(map[string][]OrderItem, len(s.items))
	for k, v := range s.items {
		is[k] = append([]OrderItem(nil), v...)
	}
	return ps, os, is
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, os, is := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.products, s.orders, s.items = ps, os, is
		return err
	}
	return nil
}

type fakeTx struct{ s *fakeStore }

func (t *fakeTx) FindOrderByNumber(ctx context.Context, number string) (*Order, error) {
	o, ok := t.s.orders[number]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (t *fakeTx) FindProductForUpdate(ctx context.Context, id string) (*Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, o *Order, items []OrderItem) error {
	if t.s.insertErr != nil {
		return t.s.insertErr
	}
	if _, ok := t.s.orders[o.OrderNumber]; ok {
		return &DuplicateOrderError{OrderNumber: o.OrderNumber}
	}
	cp := *o
	t.s.orders[o.OrderNumber] = &cp
	t.s.items[o.ID] = append([]OrderItem(nil), items...)
	return nil
}

func (t *fakeTx) UpdateProductStock(ctx context.Context, id string, stock int) error {
	p, ok := t.s.products[id]
	if !ok {
		return &ProductNotFoundError{ProductID: id}
	}
	p.Stock = stock
	return nil
}

func newTestEngine(s *fakeStore) *Engine {
	e := NewEngine(s)
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func orderReq(number string, items ...ItemInput) CreateOrderRequest {
	return CreateOrderRequest{
		OrderNumber:   number,
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		Items:         items,
	}
}

func TestCreateOrderHappyPath(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 5)

	o, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 3}))
	require.NoError(t, err)

	assert.Equal(t, "ORD-1", o.OrderNumber)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("30.00")), "total = %s", o.TotalAmount)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Qty)
	assert.True(t, o.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	require.NotNil(t, o.Items[0].Product)
	assert.Equal(t, "p-1", o.Items[0].Product.ID)

	assert.Equal(t, 2, s.products["p-1"].Stock)
}

func TestCreateOrderTotalIsExactDecimal(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "0.10", 100)
	s.addProduct("p-2", "19.99", 100)

	o, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1",
		ItemInput{ProductID: "p-1", Qty: 3},
		ItemInput{ProductID: "p-2", Qty: 7},
	))
	require.NoError(t, err)

	// 0.10*3 + 19.99*7 = 140.23, exact; float64 accumulation would drift
	assert.Equal(t, "140.23", o.TotalAmount.StringFixed(2))
}

func TestCreateOrderPriceSnapshotIsImmutable(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 5)

	e := newTestEngine(s)
	o, err := e.CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 1}))
	require.NoError(t, err)

	// live price changes after the order committed
	s.products["p-1"].Price = decimal.RequireFromString("99.00")

	assert.Equal(t, "10.00", o.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "10.00", o.TotalAmount.StringFixed(2))
}

func TestCreateOrderDuplicateNumber(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 10)
	e := newTestEngine(s)

	first, err := e.CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 1}))
	require.NoError(t, err)

	_, err = e.CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 1}))
	var dup *DuplicateOrderError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ORD-1", dup.OrderNumber)
	assert.Equal(t, first.CreatedAt, dup.PlacedAt)

	// the failed attempt must not touch stock
	assert.Equal(t, 9, s.products["p-1"].Stock)
}

func TestCreateOrderProductNotFoundRollsBackEverything(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 5)

	_, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1",
		ItemInput{ProductID: "p-1", Qty: 2}, // resolved and decremented first
		ItemInput{ProductID: "ghost", Qty: 1},
	))
	var nf *ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ProductID)

	assert.Equal(t, 5, s.products["p-1"].Stock, "first item's decrement must roll back")
	assert.Empty(t, s.orders)
	assert.Empty(t, s.items)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 2)

	_, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 3}))
	var insf *InsufficientStockError
	require.ErrorAs(t, err, &insf)
	assert.Equal(t, "p-1", insf.ProductID)
	assert.Equal(t, 3, insf.Required)
	assert.Equal(t, 2, insf.Available)

	assert.Equal(t, 2, s.products["p-1"].Stock)
	assert.Empty(t, s.orders)
}

func TestCreateOrderStorageFailureRollsBack(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 5)
	s.insertErr = errors.New("connection reset")

	_, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1", ItemInput{ProductID: "p-1", Qty: 3}))
	require.Error(t, err)

	assert.Equal(t, 5, s.products["p-1"].Stock)
	assert.Empty(t, s.orders)
}

func TestCreateOrderRepeatedProductDecrementsSequentially(t *testing.T) {
	t.Run("enough stock for both lines", func(t *testing.T) {
		s := newFakeStore()
		s.addProduct("p-1", "10.00", 5)

		o, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1",
			ItemInput{ProductID: "p-1", Qty: 2},
			ItemInput{ProductID: "p-1", Qty: 2},
		))
		require.NoError(t, err)
		assert.Equal(t, "40.00", o.TotalAmount.StringFixed(2))
		require.Len(t, o.Items, 2)
		assert.Equal(t, 1, s.products["p-1"].Stock)
	})

	t.Run("second line re-checked against decremented stock", func(t *testing.T) {
		s := newFakeStore()
		s.addProduct("p-1", "10.00", 3)

		_, err := newTestEngine(s).CreateOrder(context.Background(), orderReq("ORD-1",
			ItemInput{ProductID: "p-1", Qty: 2},
			ItemInput{ProductID: "p-1", Qty: 2},
		))
		var insf *InsufficientStockError
		require.ErrorAs(t, err, &insf)
		assert.Equal(t, 1, insf.Available)
		assert.Equal(t, 3, s.products["p-1"].Stock, "both decrements roll back")
	})
}

func TestCreateOrderConcurrentStockContention(t *testing.T) {
	const (
		initialStock = 5
		qtyPerOrder  = 2
		callers      = 8
	)
	s := newFakeStore()
	s.addProduct("p-1", "10.00", initialStock)
	e := newTestEngine(s)

	var (
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		n := i
		g.Go(func() error {
			_, err := e.CreateOrder(ctx, orderReq(
				"ORD-"+string(rune('A'+n)),
				ItemInput{ProductID: "p-1", Qty: qtyPerOrder},
			))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
				return nil
			default:
				var insf *InsufficientStockError
				if errors.As(err, &insf) {
					outOfStock++
					return nil
				}
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	// floor(5/2) = 2 winners, stock left in [0, qty)
	assert.Equal(t, initialStock/qtyPerOrder, succeeded)
	assert.Equal(t, callers-initialStock/qtyPerOrder, outOfStock)
	final := s.products["p-1"].Stock
	assert.GreaterOrEqual(t, final, 0)
	assert.Less(t, final, qtyPerOrder)
	assert.Equal(t, initialStock-succeeded*qtyPerOrder, final)
}

func TestCreateOrderConcurrentSameNumber(t *testing.T) {
	s := newFakeStore()
	s.addProduct("p-1", "10.00", 100)
	e := newTestEngine(s)

	var (
		mu         sync.Mutex
		succeeded  int
		duplicates int
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := e.CreateOrder(ctx, orderReq("ORD-RACE", ItemInput{ProductID: "p-1", Qty: 1}))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return nil
			}
			var dup *DuplicateOrderError
			if errors.As(err, &dup) {
				duplicates++
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, duplicates)
	assert.Equal(t, 99, s.products["p-1"].Stock)
}
