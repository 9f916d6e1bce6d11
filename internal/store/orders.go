package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// OrderFilter narrows a backoffice order listing
type OrderFilter struct {
	Search string
	Status models.OrderStatus
	Limit  int
	Offset int
}

// CreateOrder inserts an order and all of its items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (id, customer_id, status, total)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at`

		row := tx.QueryRowxContext(ctx, query, order.ID, order.CustomerID, order.Status, order.Total)
		if err := row.Scan(&order.CreatedAt, &order.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID

			err := tx.GetContext(ctx, &item.ID, `
				INSERT INTO order_items (order_id, variant_id, name, quantity, unit_price, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				item.OrderID, item.VariantID, item.Name, item.Quantity, item.UnitPrice, item.Subtotal)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}
		return nil
	})
}

// GetOrderByID retrieves an order with its items and customer
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	items, err := s.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items

	customer, err := s.GetCustomerByID(ctx, order.CustomerID)
	if err != nil && !errors.Is(err, models.ErrCustomerNotFound) {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	order.Customer = customer

	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order in insertion order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListOrders returns one page of orders, newest first, and the total match count
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(o.id ILIKE $%d OR c.name ILIKE $%d OR c.email ILIKE $%d)", n, n, n))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	from := "FROM orders o LEFT JOIN customers c ON c.id = o.customer_id " + where

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) "+from, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT o.* %s ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d",
		from, len(args)-1, len(args))

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	return orders, total, nil
}

// MarkOrderPaid moves a pending order to PAID and decrements stock for every
// item in the same transaction. It returns false, with nothing written, when
// the order was no longer pending.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID string) (bool, error) {
	transitioned := false

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := transitionOrder(ctx, tx, orderID, models.OrderStatusPaid)
		if err != nil || !ok {
			return err
		}

		var items []models.OrderItem
		if err := tx.SelectContext(ctx, &items,
			"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID); err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		for _, item := range items {
			found, err := decrementStock(ctx, tx, item.VariantID, item.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement stock for variant %s: %w", item.VariantID, err)
			}
			if !found {
				util.GetLogger().Warn("No stock row for variant",
					zap.String("order_id", orderID),
					zap.String("variant_id", item.VariantID))
			}
		}

		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return transitioned, nil
}

// MarkOrderCancelled moves a pending order to CANCELLED. It returns false when
// the order was no longer pending.
func (s *Store) MarkOrderCancelled(ctx context.Context, orderID string) (bool, error) {
	return transitionOrder(ctx, s.db, orderID, models.OrderStatusCancelled)
}

// DeleteOrder deletes an order together with its items
func (s *Store) DeleteOrder(ctx context.Context, orderID string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID); err != nil {
			return fmt.Errorf("failed to delete order items: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", orderID)
		if err != nil {
			return fmt.Errorf("failed to delete order: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
		}
		return nil
	})
}

// transitionOrder is a conditional update: it only matches rows still PENDING,
// so the affected-row count tells the caller whether it won the transition.
func transitionOrder(ctx context.Context, exec sqlx.ExecerContext, orderID string, to models.OrderStatus) (bool, error) {
	res, err := exec.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, models.OrderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}
