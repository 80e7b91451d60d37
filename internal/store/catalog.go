package store

import (
	"context"
	"database/sql"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("product %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products in one query. A missing
// id is simply absent from the result; callers distinguish missing from
// zero-stock by checking presence.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListProducts retrieves products with optional name filter, paginated
func (s *Store) ListProducts(ctx context.Context, search string, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var products []models.Product
	var err error
	if search != "" {
		err = s.db.SelectContext(ctx, &products,
			"SELECT * FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY id LIMIT $2 OFFSET $3",
			search, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &products,
			"SELECT * FROM products ORDER BY id LIMIT $1 OFFSET $2", limit, offset)
	}
	return products, err
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, price, stock, category_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, product, query,
		product.Name, product.Price, product.Stock, product.CategoryID)
	if isForeignKeyViolation(err) {
		return apperr.NotFound("category %d not found", product.CategoryID)
	}
	return err
}

// UpdateProduct updates name, price and category. Stock is owned by the
// settlement engine and not touched here.
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET name = $1, price = $2, category_id = $3, updated_at = NOW() WHERE id = $4",
		product.Name, product.Price, product.CategoryID, product.ID)
	if isForeignKeyViolation(err) {
		return apperr.NotFound("category %d not found", product.CategoryID)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("product %d not found", product.ID)
	}
	return nil
}

// DeleteProduct deletes a product
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("product %d not found", id)
	}
	return nil
}
