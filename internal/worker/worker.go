package worker

import (
	"context"

	"pos-backend/internal/broker"
	"pos-backend/internal/models"
	"pos-backend/internal/store"
	"pos-backend/internal/util"

	"go.uber.org/zap"
)

// StockAlertWorker consumes settlement events and warns when a
// product's remaining stock falls to or below the threshold.
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	threshold    int
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer *broker.Consumer, st *store.Store, threshold int) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer:  consumer,
		store:     st,
		threshold: threshold,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderSettled(w.handleOrderSettled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker", zap.Int("threshold", w.threshold))
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

func (w *StockAlertWorker) handleOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	for _, line := range event.Lines {
		product, err := w.store.GetProductByID(ctx, line.ProductID)
		if err != nil {
			// Product may have been deleted since the event.
			w.logger.Warn("Could not check stock level",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
			continue
		}

		if product.Stock <= w.threshold {
			util.LowStockProductsTotal.Inc()
			w.logger.Warn("Product stock low",
				zap.Int64("product_id", product.ID),
				zap.String("name", product.Name),
				zap.Int("stock", product.Stock))
		}
	}
	return nil
}
