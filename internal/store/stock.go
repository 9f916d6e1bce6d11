package store

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// DecrementStock subtracts quantity from the variant's stock row. There is no
// floor, so quantity may go negative. It returns false when the variant has no
// stock row.
func (s *Store) DecrementStock(ctx context.Context, variantID string, quantity int) (bool, error) {
	return decrementStock(ctx, s.db, variantID, quantity)
}

// decrementStock targets the warehouse holding the most units of the variant,
// ties broken by warehouse id.
func decrementStock(ctx context.Context, exec sqlx.ExecerContext, variantID string, quantity int) (bool, error) {
	res, err := exec.ExecContext(ctx, `
		UPDATE stock SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM stock
			WHERE variant_id = $2
			ORDER BY quantity DESC, warehouse_id
			LIMIT 1
		)`, quantity, variantID)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetStockByVariant retrieves the stock rows of a variant across warehouses
func (s *Store) GetStockByVariant(ctx context.Context, variantID string) ([]models.Stock, error) {
	stock := []models.Stock{}
	err := s.db.SelectContext(ctx, &stock,
		"SELECT * FROM stock WHERE variant_id = $1 ORDER BY warehouse_id", variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

// GetStockTotals sums stock per variant across all warehouses
func (s *Store) GetStockTotals(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		VariantID string `db:"variant_id"`
		Total     int    `db:"total"`
	}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT variant_id, SUM(quantity) AS total FROM stock GROUP BY variant_id")
	if err != nil {
		return nil, fmt.Errorf("failed to sum stock: %w", err)
	}

	totals := make(map[string]int, len(rows))
	for _, r := range rows {
		totals[r.VariantID] = r.Total
	}
	return totals, nil
}

// UpsertStock sets the quantity of a variant in a warehouse
func (s *Store) UpsertStock(ctx context.Context, variantID, warehouseID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock (variant_id, warehouse_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (variant_id, warehouse_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
		variantID, warehouseID, quantity)
	return err
}
