package service

import (
	"context"
	"time"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"
	"pos-backend/internal/store"
	"pos-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CartLine is one client-submitted (product, quantity) pair
type CartLine struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// SettlementStore is the data-access contract the engine runs against.
type SettlementStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrderWithLines(ctx context.Context, id int64) (*models.Order, error)
	AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	RunTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// SettlementEvents publishes post-commit events. Publishing is
// best-effort and never affects the committed transaction.
type SettlementEvents interface {
	PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error
	PublishOrderReversed(ctx context.Context, event *models.OrderReversedEvent) error
}

// SettlementConfig tunes the commit protocol.
type SettlementConfig struct {
	// MaxRetries bounds internal retries of the atomic unit on
	// serialization/deadlock failures.
	MaxRetries int
	// RetryBackoff is the initial backoff between retries; it doubles
	// per attempt.
	RetryBackoff time.Duration
	// StrictAudit makes the audit write part of the atomic unit. When
	// false the entry is appended after commit, best-effort.
	StrictAudit bool
}

// DefaultSettlementConfig returns the production defaults
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		MaxRetries:   3,
		RetryBackoff: 25 * time.Millisecond,
		StrictAudit:  false,
	}
}

// SettlementService turns carts into committed orders and reverses
// them. All stock mutations in the system go through here.
type SettlementService struct {
	store  SettlementStore
	events SettlementEvents
	cfg    SettlementConfig
	logger *zap.Logger
}

// NewSettlementService creates a settlement service. events may be nil
// when no broker is configured.
func NewSettlementService(st SettlementStore, events SettlementEvents, cfg SettlementConfig) *SettlementService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	return &SettlementService{
		store:  st,
		events: events,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// PlaceOrder validates the cart, prices every line against the current
// catalog, and commits order, lines, stock decrements and audit entry
// as one atomic unit. Any failure leaves all stores unchanged.
func (s *SettlementService) PlaceOrder(ctx context.Context, actorID int64, customerID *int64, cart []CartLine) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SettlementLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.placeOrder(ctx, actorID, customerID, cart)
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	util.OrdersSettledTotal.Inc()

	s.appendAuditSoft(ctx, &models.AuditEntry{
		Action: models.AuditOrderCreated,
		Entity: models.EntityOrder,
		UserID: actorID,
	})
	s.publishSettled(ctx, order)

	s.logger.Info("Order settled",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", actorID),
		zap.Int64("total", order.Total),
		zap.Int("lines", len(order.Lines)))

	return order, nil
}

func (s *SettlementService) placeOrder(ctx context.Context, actorID int64, customerID *int64, cart []CartLine) (*models.Order, error) {
	if len(cart) == 0 {
		return nil, apperr.BadRequest("cart is empty")
	}
	for _, line := range cart {
		if line.ProductID <= 0 || line.Quantity <= 0 {
			return nil, apperr.BadRequest("invalid product or quantity")
		}
	}

	if actorID <= 0 {
		return nil, apperr.Unauthorized("user not authenticated")
	}
	if _, err := s.store.GetUserByID(ctx, actorID); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("user not authenticated")
		}
		return nil, err
	}

	if customerID != nil {
		if _, err := s.store.GetCustomerByID(ctx, *customerID); err != nil {
			return nil, err
		}
	}

	products, err := s.resolveProducts(ctx, cart)
	if err != nil {
		return nil, err
	}

	// Price each line and pre-check stock. Duplicate product ids stay
	// as independent lines; the conditional decrements inside the
	// transaction still enforce their combined demand.
	lines := make([]models.OrderLine, len(cart))
	var total int64
	for i, item := range cart {
		product := products[item.ProductID]
		if product.Stock < item.Quantity {
			util.StockConflictsTotal.Inc()
			return nil, apperr.InsufficientStock("insufficient stock for %s", product.Name)
		}
		subtotal := product.Price * int64(item.Quantity)
		total += subtotal
		lines[i] = models.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Subtotal:  subtotal,
		}
	}

	order := &models.Order{
		Total:      total,
		CustomerID: customerID,
		UserID:     actorID,
	}

	err = s.runAtomic(ctx, func(tx store.Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = order.ID
			if err := tx.CreateOrderLine(ctx, &lines[i]); err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, lines[i].ProductID, lines[i].Quantity); err != nil {
				if apperr.IsKind(err, apperr.KindInsufficientStock) {
					util.StockConflictsTotal.Inc()
				}
				return err
			}
		}
		if s.cfg.StrictAudit {
			return tx.AppendAuditEntry(ctx, &models.AuditEntry{
				Action: models.AuditOrderCreated,
				Entity: models.EntityOrder,
				UserID: actorID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.Lines = lines
	return order, nil
}

// resolveProducts fetches every distinct product in one batch. A
// missing id fails NotFound; presence with zero stock does not.
func (s *SettlementService) resolveProducts(ctx context.Context, cart []CartLine) (map[int64]models.Product, error) {
	seen := make(map[int64]struct{}, len(cart))
	ids := make([]int64, 0, len(cart))
	for _, line := range cart {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperr.NotFound("product %d not found", id)
		}
	}
	return byID, nil
}

// ReverseOrder restores stock for every line, deletes the order and
// appends an audit entry, all in one atomic unit. Reversal is a true
// compensation, not a soft delete.
func (s *SettlementService) ReverseOrder(ctx context.Context, orderID, actorID int64) error {
	ctx, span := util.StartSpan(ctx, "SettlementService.ReverseOrder")
	defer span.End()

	order, err := s.store.GetOrderWithLines(ctx, orderID)
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return err
	}

	err = s.runAtomic(ctx, func(tx store.Tx) error {
		for _, line := range order.Lines {
			if err := tx.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		// Lines cascade; zero rows here means a concurrent reversal
		// won, and the rollback undoes our increments.
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		if s.cfg.StrictAudit {
			return tx.AppendAuditEntry(ctx, &models.AuditEntry{
				Action: models.AuditOrderReversed,
				Entity: models.EntityOrder,
				UserID: actorID,
			})
		}
		return nil
	})
	if err != nil {
		util.SettlementsFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return err
	}

	util.OrdersReversedTotal.Inc()

	s.appendAuditSoft(ctx, &models.AuditEntry{
		Action: models.AuditOrderReversed,
		Entity: models.EntityOrder,
		UserID: actorID,
	})
	s.publishReversed(ctx, order, actorID)

	s.logger.Info("Order reversed",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", actorID))

	return nil
}

// runAtomic runs the atomic unit with bounded retries on transient
// lock contention.
func (s *SettlementService) runAtomic(ctx context.Context, fn func(tx store.Tx) error) error {
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			util.SettlementRetriesTotal.Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		err = s.store.RunTx(ctx, fn)
		if err == nil || !store.IsRetryable(err) {
			return err
		}
		s.logger.Warn("Retrying settlement after contention",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

// appendAuditSoft is the soft audit path: after commit, best-effort.
func (s *SettlementService) appendAuditSoft(ctx context.Context, entry *models.AuditEntry) {
	if s.cfg.StrictAudit {
		return
	}
	if err := s.store.AppendAuditEntry(ctx, entry); err != nil {
		util.AuditAppendFailuresTotal.Inc()
		s.logger.Error("Failed to append audit entry",
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func (s *SettlementService) publishSettled(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	event := &models.OrderSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderSettled,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Lines:   lineData(order.Lines),
	}
	if err := s.events.PublishOrderSettled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderSettled event", zap.Error(err))
	}
}

func (s *SettlementService) publishReversed(ctx context.Context, order *models.Order, actorID int64) {
	if s.events == nil {
		return
	}
	event := &models.OrderReversedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderReversed,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  actorID,
		Lines:   lineData(order.Lines),
	}
	if err := s.events.PublishOrderReversed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderReversed event", zap.Error(err))
	}
}

func lineData(lines []models.OrderLine) []models.OrderLineData {
	data := make([]models.OrderLineData, len(lines))
	for i, line := range lines {
		data[i] = models.OrderLineData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal,
		}
	}
	return data
}
