package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OrderService handles backoffice order management
type OrderService struct {
	store     OrderStore
	publisher OrderEventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher may be nil.
func NewOrderService(store OrderStore, publisher OrderEventPublisher) *OrderService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &OrderService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ListOrdersRequest represents backoffice list filters
type ListOrdersRequest struct {
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
	Search string `form:"search"`
	Status string `form:"status"`
}

// ListOrdersResponse is one page of orders
type ListOrdersResponse struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// ListOrders returns a page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filter := store.OrderFilter{
		Search: strings.TrimSpace(req.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if req.Status != "" {
		status, err := models.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}

	return &ListOrdersResponse{Orders: orders, Total: total, Page: page, Limit: limit}, nil
}

// GetOrder retrieves an order with its items and customer
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// UpdateOrderStatus moves an order through the same conditional transitions
// the webhook uses, so a manual PAID also decrements stock.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	target, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == target {
		return order, nil
	}
	if !models.CanTransition(order.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, target)
	}

	var transitioned bool
	switch target {
	case models.OrderStatusPaid:
		transitioned, err = s.store.MarkOrderPaid(ctx, orderID)
	case models.OrderStatusCancelled:
		transitioned, err = s.store.MarkOrderCancelled(ctx, orderID)
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !transitioned {
		return nil, fmt.Errorf("%w: order %s is no longer %s", models.ErrInvalidTransition, orderID, models.OrderStatusPending)
	}

	s.logger.Info("Order status updated from backoffice",
		zap.String("order_id", orderID),
		zap.String("from", order.Status.String()),
		zap.String("to", target.String()))

	order.Status = target
	switch target {
	case models.OrderStatusPaid:
		util.OrdersPaidTotal.Inc()
		if err := s.publisher.PublishOrderPaid(ctx, newOrderPaidEvent(order, "")); err != nil {
			s.logger.Error("Failed to publish OrderPaid event", zap.String("order_id", orderID), zap.Error(err))
		}
	case models.OrderStatusCancelled:
		util.OrdersCancelledTotal.Inc()
		if err := s.publisher.PublishOrderCancelled(ctx, newOrderCancelledEvent(orderID, models.CancellationReasonBackoffice)); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	return s.store.GetOrderByID(ctx, orderID)
}

// DeleteOrder removes an order and its items
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	if err := s.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	s.logger.Info("Order deleted", zap.String("order_id", orderID))
	return nil
}
