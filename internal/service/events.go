package service

import (
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func newOrderCreatedEvent(order *models.Order) *models.OrderCreatedEvent {
	return &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Items:      models.ItemData(order.Items),
	}
}

func newOrderPaidEvent(order *models.Order, paymentID string) *models.OrderPaidEvent {
	return &models.OrderPaidEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderPaid),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		PaymentID:  paymentID,
		Total:      order.Total,
		Items:      models.ItemData(order.Items),
	}
}

func newOrderCancelledEvent(orderID, reason string) *models.OrderCancelledEvent {
	return &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   orderID,
		Reason:    reason,
	}
}
