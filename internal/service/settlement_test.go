package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"
	"pos-backend/internal/store"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory SettlementStore. RunTx holds one mutex for
// the whole unit and restores a snapshot on error, which makes
// overlapping transactions serializable the way the database is.
type fakeStore struct {
	mu sync.Mutex

	users     map[int64]models.User
	customers map[int64]models.Customer
	products  map[int64]models.Product
	orders    map[int64]models.Order
	lines     map[int64][]models.OrderLine
	audits    []models.AuditEntry

	nextOrderID int64
	nextLineID  int64
	nextAuditID int64

	failSoftAudit   bool
	failTxAudit     bool
	contentionsLeft int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]models.User{
			1: {ID: 1, Name: "Cashier One", Email: "cashier1@example.com", Role: models.RoleCashier},
		},
		customers: map[int64]models.Customer{
			1: {ID: 1, Name: "John Doe", Phone: "08123456789"},
		},
		products: map[int64]models.Product{},
		orders:   map[int64]models.Order{},
		lines:    map[int64][]models.OrderLine{},
	}
}

func (f *fakeStore) addProduct(id int64, name string, price int64, stock int) {
	f.products[id] = models.Product{ID: id, Name: name, Price: price, Stock: stock, CategoryID: 1}
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return &u, nil
}

func (f *fakeStore) GetCustomerByID(_ context.Context, id int64) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, apperr.NotFound("customer %d not found", id)
	}
	return &c, nil
}

func (f *fakeStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrderWithLines(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d not found", id)
	}
	o.Lines = append([]models.OrderLine(nil), f.lines[id]...)
	return &o, nil
}

func (f *fakeStore) AppendAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSoftAudit {
		return errors.New("audit store unavailable")
	}
	f.appendAuditLocked(entry)
	return nil
}

func (f *fakeStore) appendAuditLocked(entry *models.AuditEntry) {
	f.nextAuditID++
	entry.ID = f.nextAuditID
	entry.CreatedAt = time.Now()
	f.audits = append(f.audits, *entry)
}

type snapshot struct {
	products    map[int64]models.Product
	orders      map[int64]models.Order
	lines       map[int64][]models.OrderLine
	audits      []models.AuditEntry
	nextOrderID int64
	nextLineID  int64
	nextAuditID int64
}

func (f *fakeStore) snapshotLocked() snapshot {
	s := snapshot{
		products:    make(map[int64]models.Product, len(f.products)),
		orders:      make(map[int64]models.Order, len(f.orders)),
		lines:       make(map[int64][]models.OrderLine, len(f.lines)),
		audits:      append([]models.AuditEntry(nil), f.audits...),
		nextOrderID: f.nextOrderID,
		nextLineID:  f.nextLineID,
		nextAuditID: f.nextAuditID,
	}
	for k, v := range f.products {
		s.products[k] = v
	}
	for k, v := range f.orders {
		s.orders[k] = v
	}
	for k, v := range f.lines {
		s.lines[k] = append([]models.OrderLine(nil), v...)
	}
	return s
}

func (f *fakeStore) restoreLocked(s snapshot) {
	f.products = s.products
	f.orders = s.orders
	f.lines = s.lines
	f.audits = s.audits
	f.nextOrderID = s.nextOrderID
	f.nextLineID = s.nextLineID
	f.nextAuditID = s.nextAuditID
}

func (f *fakeStore) RunTx(_ context.Context, fn func(tx store.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.contentionsLeft > 0 {
		f.contentionsLeft--
		return &pq.Error{Code: "40001", Message: "serialization failure"}
	}

	snap := f.snapshotLocked()
	if err := fn(&fakeTx{s: f}); err != nil {
		f.restoreLocked(snap)
		return err
	}
	return nil
}

type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) CreateOrder(_ context.Context, order *models.Order) error {
	t.s.nextOrderID++
	order.ID = t.s.nextOrderID
	order.CreatedAt = time.Now()
	stored := *order
	stored.Lines = nil
	t.s.orders[order.ID] = stored
	return nil
}

func (t *fakeTx) CreateOrderLine(_ context.Context, line *models.OrderLine) error {
	t.s.nextLineID++
	line.ID = t.s.nextLineID
	t.s.lines[line.OrderID] = append(t.s.lines[line.OrderID], *line)
	return nil
}

func (t *fakeTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return apperr.NotFound("product %d not found", productID)
	}
	if p.Stock < quantity {
		return apperr.InsufficientStock("insufficient stock for product %d", productID)
	}
	p.Stock -= quantity
	t.s.products[productID] = p
	return nil
}

func (t *fakeTx) IncrementStock(_ context.Context, productID int64, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return apperr.NotFound("product %d not found", productID)
	}
	p.Stock += quantity
	t.s.products[productID] = p
	return nil
}

func (t *fakeTx) DeleteOrder(_ context.Context, orderID int64) error {
	if _, ok := t.s.orders[orderID]; !ok {
		return apperr.NotFound("order %d not found", orderID)
	}
	delete(t.s.orders, orderID)
	delete(t.s.lines, orderID)
	return nil
}

func (t *fakeTx) AppendAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	if t.s.failTxAudit {
		return errors.New("audit store unavailable")
	}
	t.s.appendAuditLocked(entry)
	return nil
}

func (f *fakeStore) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeStore) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) auditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var actions []string
	for _, a := range f.audits {
		actions = append(actions, a.Action)
	}
	return actions
}

type fakeEvents struct {
	mu       sync.Mutex
	settled  []*models.OrderSettledEvent
	reversed []*models.OrderReversedEvent
}

func (e *fakeEvents) PublishOrderSettled(_ context.Context, event *models.OrderSettledEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settled = append(e.settled, event)
	return nil
}

func (e *fakeEvents) PublishOrderReversed(_ context.Context, event *models.OrderReversedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reversed = append(e.reversed, event)
	return nil
}

func newTestService(fs *fakeStore) (*SettlementService, *fakeEvents) {
	events := &fakeEvents{}
	cfg := DefaultSettlementConfig()
	cfg.RetryBackoff = time.Millisecond
	return NewSettlementService(fs, events, cfg), events
}

func TestPlaceOrderComputesTotalAndDecrementsStock(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, events := newTestService(fs)

	order, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 3},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3000), order.Total)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, int64(3000), order.Lines[0].Subtotal)
	assert.Equal(t, 2, fs.stock(10))
	assert.Contains(t, fs.auditActions(), models.AuditOrderCreated)
	assert.Len(t, events.settled, 1)
	assert.Equal(t, order.ID, events.settled[0].OrderID)
}

func TestPlaceOrderTotalMatchesLineSum(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 10000, 50)
	fs.addProduct(11, "Potato Chips", 15000, 40)
	svc, _ := newTestService(fs)

	customerID := int64(1)
	order, err := svc.PlaceOrder(context.Background(), 1, &customerID, []CartLine{
		{ProductID: 10, Quantity: 2},
		{ProductID: 11, Quantity: 1},
	})
	require.NoError(t, err)

	var sum int64
	for _, line := range order.Lines {
		sum += line.Subtotal
	}
	assert.Equal(t, sum, order.Total)
	assert.Equal(t, int64(35000), order.Total)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, events := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
	assert.Equal(t, 0, fs.orderCount())
	assert.Equal(t, 5, fs.stock(10))
	assert.Empty(t, fs.auditActions())
	assert.Empty(t, events.settled)
}

func TestPlaceOrderInvalidQuantity(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, _ := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 0},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))

	_, err = svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: -2},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindBadRequest))
}

func TestPlaceOrderUnknownProduct(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, _ := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
		{ProductID: 999, Quantity: 1},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, 5, fs.stock(10))
	assert.Equal(t, 0, fs.orderCount())
}

func TestPlaceOrderUnknownActor(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, _ := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 42, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	_, err = svc.PlaceOrder(context.Background(), 0, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
}

func TestPlaceOrderUnknownCustomer(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, _ := newTestService(fs)

	customerID := int64(77)
	_, err := svc.PlaceOrder(context.Background(), 1, &customerID, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, 0, fs.orderCount())
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 2)
	svc, events := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 3},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))
	assert.Contains(t, err.Error(), "Coca Cola")
	assert.Equal(t, 2, fs.stock(10))
	assert.Equal(t, 0, fs.orderCount())
	assert.Empty(t, events.settled)
}

// Duplicate product ids are kept as independent lines, but their
// combined demand is still enforced by the conditional decrements
// inside the atomic unit.
func TestPlaceOrderDuplicateLinesOverCombinedStock(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 3)
	svc, _ := newTestService(fs)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 2},
		{ProductID: 10, Quantity: 2},
	})
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))
	assert.Equal(t, 3, fs.stock(10), "failed settlement must not touch stock")
	assert.Equal(t, 0, fs.orderCount())
}

func TestPlaceOrderDuplicateLinesWithinStock(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	svc, _ := newTestService(fs)

	order, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 2},
		{ProductID: 10, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Len(t, order.Lines, 2)
	assert.Equal(t, int64(3000), order.Total)
	assert.Equal(t, 2, fs.stock(10))
}

func TestReverseOrderRestoresStock(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	fs.addProduct(11, "Potato Chips", 1500, 4)
	svc, events := newTestService(fs)

	order, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 3},
		{ProductID: 11, Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, fs.stock(10))
	require.Equal(t, 2, fs.stock(11))

	err = svc.ReverseOrder(context.Background(), order.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 5, fs.stock(10))
	assert.Equal(t, 4, fs.stock(11))
	assert.Equal(t, 0, fs.orderCount())
	assert.Contains(t, fs.auditActions(), models.AuditOrderReversed)
	assert.Len(t, events.reversed, 1)

	// Reversing again is NotFound, nothing changes.
	err = svc.ReverseOrder(context.Background(), order.ID, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, 5, fs.stock(10))
}

func TestReverseOrderNotFound(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)

	err := svc.ReverseOrder(context.Background(), 12345, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestConcurrentPlaceOrderLastUnit(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Bluetooth Speaker", 250000, 1)
	svc, _ := newTestService(fs)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
				{ProductID: 10, Quantity: 1},
			})
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.KindInsufficientStock):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 0, fs.stock(10))
	assert.Equal(t, 1, fs.orderCount())
}

func TestConcurrentPlaceOrderStockTwo(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Bluetooth Speaker", 250000, 2)
	svc, _ := newTestService(fs)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
				{ProductID: 10, Quantity: 2},
			})
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.IsKind(err, apperr.KindInsufficientStock):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 0, fs.stock(10))
}

func TestSoftAuditFailureDoesNotFailSettlement(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	fs.failSoftAudit = true
	svc, _ := newTestService(fs)

	order, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 4, fs.stock(10))
	assert.Empty(t, fs.auditActions())
}

func TestStrictAuditFailureAbortsSettlement(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	fs.failTxAudit = true

	cfg := DefaultSettlementConfig()
	cfg.StrictAudit = true
	cfg.RetryBackoff = time.Millisecond
	svc := NewSettlementService(fs, nil, cfg)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	require.Error(t, err)
	assert.Equal(t, 5, fs.stock(10))
	assert.Equal(t, 0, fs.orderCount())
}

func TestStrictAuditWritesInsideUnit(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)

	cfg := DefaultSettlementConfig()
	cfg.StrictAudit = true
	svc := NewSettlementService(fs, nil, cfg)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.AuditOrderCreated}, fs.auditActions())
}

func TestRetryOnSerializationFailure(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	fs.contentionsLeft = 2
	svc, _ := newTestService(fs)

	order, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 4, fs.stock(10))
}

func TestRetriesAreBounded(t *testing.T) {
	fs := newFakeStore()
	fs.addProduct(10, "Coca Cola", 1000, 5)
	fs.contentionsLeft = 100

	cfg := SettlementConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}
	svc := NewSettlementService(fs, nil, cfg)

	_, err := svc.PlaceOrder(context.Background(), 1, nil, []CartLine{
		{ProductID: 10, Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
	assert.Equal(t, 5, fs.stock(10))
	assert.Equal(t, 0, fs.orderCount())
}
