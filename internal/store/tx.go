package store

import (
	"context"
	"errors"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Tx is the set of writes available inside one atomic unit. The
// settlement engine drives these; either every write in the unit
// becomes visible or none does.
type Tx interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderLine(ctx context.Context, line *models.OrderLine) error
	// DecrementStock conditionally decrements a product's stock. The
	// decrement only applies if stock is still sufficient at execution
	// time, under the row lock the UPDATE takes, so concurrent
	// settlements on the same product serialize here.
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	IncrementStock(ctx context.Context, productID int64, quantity int) error
	DeleteOrder(ctx context.Context, orderID int64) error
	AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// TxRunner runs a function inside one atomic unit.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(tx Tx) error) error
}

// RunTx executes fn inside a database transaction. Any error from fn
// rolls back every write.
func (s *Store) RunTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sqlx.Tx
}

// CreateOrder inserts the order row and fills in its id and timestamp
func (t *txStore) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (total, customer_id, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, order, query,
		order.Total, order.CustomerID, order.UserID)
}

// CreateOrderLine inserts one order line
func (t *txStore) CreateOrderLine(ctx context.Context, line *models.OrderLine) error {
	query := `
		INSERT INTO order_lines (order_id, product_id, quantity, subtotal)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return t.tx.GetContext(ctx, &line.ID, query,
		line.OrderID, line.ProductID, line.Quantity, line.Subtotal)
}

// DecrementStock applies the conditional decrement. Zero rows affected
// means stock was no longer sufficient under the lock.
func (t *txStore) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.InsufficientStock("insufficient stock for product %d", productID)
	}
	return nil
}

// IncrementStock restores stock during reversal
func (t *txStore) IncrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("product %d not found", productID)
	}
	return nil
}

// DeleteOrder removes the order; order_lines cascade
func (t *txStore) DeleteOrder(ctx context.Context, orderID int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("order %d not found", orderID)
	}
	return nil
}

// AppendAuditEntry writes an audit entry inside the transaction
func (t *txStore) AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (action, entity, user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, entry, query,
		entry.Action, entry.Entity, entry.UserID)
}

// Postgres error codes surfaced by lib/pq.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
)

// IsRetryable reports whether err is transient lock contention worth
// retrying the whole atomic unit for.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
