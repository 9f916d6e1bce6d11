package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// paidOrderMarkerTTL bounds how long a processed ORDER_PAID event is remembered
const paidOrderMarkerTTL = 24 * time.Hour

// InventoryClient serves stock reads and keeps the cached totals in step
// with the database
type InventoryClient struct {
	store  StockStore
	cache  StockCache
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client. cache may be nil.
func NewInventoryClient(store StockStore, cache StockCache) *InventoryClient {
	return &InventoryClient{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// VariantStock is the per-warehouse breakdown of a variant
type VariantStock struct {
	VariantID  string         `json:"variant_id"`
	Total      int            `json:"total"`
	Warehouses []models.Stock `json:"warehouses"`
}

// GetAvailable returns the total quantity of a variant (fast path via Redis)
func (ic *InventoryClient) GetAvailable(ctx context.Context, variantID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.GetAvailable")
	defer span.End()

	if ic.cache != nil {
		total, ok, err := ic.cache.GetStockTotal(ctx, variantID)
		if err == nil && ok {
			return total, nil
		}
		if err != nil {
			ic.logger.Warn("Redis stock read failed, falling back to DB",
				zap.String("variant_id", variantID),
				zap.Error(err))
		}
	}

	rows, err := ic.store.GetStockByVariant(ctx, variantID)
	if err != nil {
		return 0, fmt.Errorf("failed to get stock: %w", err)
	}
	total := sumStock(rows)

	if ic.cache != nil {
		if err := ic.cache.SetStockTotal(ctx, variantID, total); err != nil {
			ic.logger.Warn("Failed to cache stock total", zap.String("variant_id", variantID), zap.Error(err))
		}
	}

	return total, nil
}

// GetVariantStock reads the authoritative per-warehouse rows
func (ic *InventoryClient) GetVariantStock(ctx context.Context, variantID string) (*VariantStock, error) {
	rows, err := ic.store.GetStockByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	if rows == nil {
		rows = []models.Stock{}
	}
	return &VariantStock{VariantID: variantID, Total: sumStock(rows), Warehouses: rows}, nil
}

// SyncStockToRedis seeds the cache with the database totals
func (ic *InventoryClient) SyncStockToRedis(ctx context.Context) error {
	if ic.cache == nil {
		return nil
	}

	ic.logger.Info("Starting stock sync to Redis")

	totals, err := ic.store.GetStockTotals(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stock totals: %w", err)
	}

	if err := ic.cache.InitStock(ctx, totals); err != nil {
		return fmt.Errorf("failed to init Redis stock: %w", err)
	}

	ic.logger.Info("Stock sync completed", zap.Int("count", len(totals)))
	return nil
}

// ApplyOrderPaid evicts the cached totals of a paid order's variants. The
// database already holds the decremented rows, so the next GetAvailable
// reloads them. Redelivered events are recognised by event id and skipped.
func (ic *InventoryClient) ApplyOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	if ic.cache == nil {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "InventoryClient.ApplyOrderPaid")
	defer span.End()

	applied, err := ic.cache.InvalidatePaidOrder(ctx, event.EventID, event.Items, paidOrderMarkerTTL)
	if err != nil {
		util.StockCacheUpdatesTotal.WithLabelValues("error").Inc()
		util.RecordError(span, err)
		return fmt.Errorf("failed to evict stock cache for order %s: %w", event.OrderID, err)
	}

	if !applied {
		util.StockCacheUpdatesTotal.WithLabelValues("duplicate").Inc()
		ic.logger.Debug("Skipping already applied order event",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID))
		return nil
	}

	util.StockCacheUpdatesTotal.WithLabelValues("evicted").Inc()
	return nil
}

func sumStock(rows []models.Stock) int {
	total := 0
	for _, r := range rows {
		total += r.Quantity
	}
	return total
}
