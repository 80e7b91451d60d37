package store

import (
	"context"
	"database/sql"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrderWithLines retrieves an order together with its lines
func (s *Store) GetOrderWithLines(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("order %d not found", id)
	}
	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &order.Lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves orders newest first, with their lines
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	lines, err := s.getOrderLinesByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		o := byID[line.OrderID]
		o.Lines = append(o.Lines, line)
	}
	return orders, nil
}

// GetOrdersByUserID retrieves orders placed by a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

func (s *Store) getOrderLinesByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.OrderLine, error) {
	query, args, err := sqlx.In("SELECT * FROM order_lines WHERE order_id IN (?) ORDER BY id", orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var lines []models.OrderLine
	err = s.db.SelectContext(ctx, &lines, query, args...)
	return lines, err
}
