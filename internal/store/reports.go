package store

import (
	"context"
	"time"
)

// SalesBucket is one row of the sales report
type SalesBucket struct {
	Date       string `db:"date" json:"date"`
	TotalSales int64  `db:"total_sales" json:"total_sales"`
	OrderCount int64  `db:"order_count" json:"order_count"`
}

// TopProduct is one row of the top-products report
type TopProduct struct {
	ProductID     int64  `db:"product_id" json:"product_id"`
	Name          string `db:"name" json:"name"`
	Price         int64  `db:"price" json:"price"`
	TotalQuantity int64  `db:"total_quantity" json:"total_quantity"`
	TotalRevenue  int64  `db:"total_revenue" json:"total_revenue"`
	OrderCount    int64  `db:"order_count" json:"order_count"`
}

// SalesReport aggregates committed order totals per day or per month
// over an optional date range.
func (s *Store) SalesReport(ctx context.Context, start, end *time.Time, group string) ([]SalesBucket, error) {
	format := "YYYY-MM-DD"
	if group == "month" {
		format = "YYYY-MM"
	}

	query := `
		SELECT TO_CHAR(created_at, $1) AS date,
		       COALESCE(SUM(total), 0)::bigint AS total_sales,
		       COUNT(*)::bigint AS order_count
		FROM orders
		WHERE ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		GROUP BY TO_CHAR(created_at, $1)
		ORDER BY date`

	var buckets []SalesBucket
	err := s.db.SelectContext(ctx, &buckets, query, format, start, end)
	return buckets, err
}

// TopProducts reports best-selling products by quantity
func (s *Store) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT p.id AS product_id,
		       p.name,
		       p.price,
		       SUM(ol.quantity)::bigint AS total_quantity,
		       SUM(ol.subtotal)::bigint AS total_revenue,
		       COUNT(DISTINCT ol.order_id)::bigint AS order_count
		FROM order_lines ol
		JOIN products p ON p.id = ol.product_id
		GROUP BY p.id, p.name, p.price
		ORDER BY total_quantity DESC
		LIMIT $1`

	var top []TopProduct
	err := s.db.SelectContext(ctx, &top, query, limit)
	return top, err
}
