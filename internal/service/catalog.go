package service

import (
	"context"
	"time"

	"pos-backend/internal/models"
	"pos-backend/internal/redisclient"
	"pos-backend/internal/store"
	"pos-backend/internal/util"

	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

// CatalogService handles product management. Reads go through a Redis
// cache; stock always comes from the database since Redis copies may
// lag behind settlements.
type CatalogService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st *store.Store, redis *redisclient.Client) *CatalogService {
	return &CatalogService{
		store:  st,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// GetProduct retrieves a product, cache-aside
func (c *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	if cached, err := c.redis.GetCachedProduct(ctx, id); err != nil {
		c.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	product, err := c.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.redis.CacheProduct(ctx, product, productCacheTTL); err != nil {
		c.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return product, nil
}

// ListProducts retrieves products with optional search, paginated
func (c *CatalogService) ListProducts(ctx context.Context, search string, limit, offset int) ([]models.Product, error) {
	return c.store.ListProducts(ctx, search, limit, offset)
}

// CreateProduct creates a product and records the action
func (c *CatalogService) CreateProduct(ctx context.Context, actorID int64, product *models.Product) error {
	if err := c.store.CreateProduct(ctx, product); err != nil {
		return err
	}
	c.audit(ctx, models.AuditProductCreated, actorID)
	return nil
}

// UpdateProduct updates a product and invalidates its cache entry
func (c *CatalogService) UpdateProduct(ctx context.Context, actorID int64, product *models.Product) error {
	if err := c.store.UpdateProduct(ctx, product); err != nil {
		return err
	}
	c.invalidate(ctx, product.ID)
	c.audit(ctx, models.AuditProductUpdated, actorID)
	return nil
}

// DeleteProduct deletes a product and invalidates its cache entry
func (c *CatalogService) DeleteProduct(ctx context.Context, actorID, id int64) error {
	if err := c.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	c.audit(ctx, models.AuditProductDeleted, actorID)
	return nil
}

func (c *CatalogService) invalidate(ctx context.Context, id int64) {
	if err := c.redis.InvalidateProduct(ctx, id); err != nil {
		c.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
}

func (c *CatalogService) audit(ctx context.Context, action string, actorID int64) {
	err := c.store.AppendAuditEntry(ctx, &models.AuditEntry{
		Action: action,
		Entity: models.EntityProduct,
		UserID: actorID,
	})
	if err != nil {
		util.AuditAppendFailuresTotal.Inc()
		c.logger.Error("Failed to append audit entry", zap.String("action", action), zap.Error(err))
	}
}
