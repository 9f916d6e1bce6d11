package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// MessageSource is a consumer the worker can drain
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockApplier mirrors paid orders into the stock cache
type StockApplier interface {
	ApplyOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
}

// StockCacheWorker keeps cached stock totals in step with paid orders
type StockCacheWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer MessageSource, applier StockApplier) *StockCacheWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(applier.ApplyOrderPaid)

	return &StockCacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming order events until ctx is cancelled
func (w *StockCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	w.logger.Info("Stopping stock cache worker")
	return w.consumer.Close()
}
