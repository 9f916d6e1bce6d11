package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/paymentclient"
	"storefront/internal/store"
)

// CheckoutStore is the persistence the checkout initiator needs
type CheckoutStore interface {
	GetCustomerByID(ctx context.Context, id string) (*models.Customer, error)
	CreateOrder(ctx context.Context, order *models.Order) error
}

// WebhookStore is the persistence the webhook handler needs. Both Mark
// methods are conditional on the order still being PENDING and report
// whether this call performed the transition.
type WebhookStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID string) (bool, error)
	MarkOrderCancelled(ctx context.Context, orderID string) (bool, error)
}

// OrderStore backs the backoffice order surface
type OrderStore interface {
	WebhookStore
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.Order, int, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type CustomerStore interface {
	GetCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, customer *models.Customer) error
}

type StockStore interface {
	GetStockByVariant(ctx context.Context, variantID string) ([]models.Stock, error)
	GetStockTotals(ctx context.Context) (map[string]int, error)
}

type StockCache interface {
	InitStock(ctx context.Context, totals map[string]int) error
	GetStockTotal(ctx context.Context, variantID string) (int, bool, error)
	SetStockTotal(ctx context.Context, variantID string, total int) error
	InvalidatePaidOrder(ctx context.Context, eventID string, items []models.OrderItemData, markerTTL time.Duration) (bool, error)
}

// PaymentSessions creates hosted checkout sessions
type PaymentSessions interface {
	CreatePreference(ctx context.Context, req *paymentclient.PreferenceRequest) (*paymentclient.Preference, error)
}

// PaymentLookup fetches authoritative payment state
type PaymentLookup interface {
	GetPayment(ctx context.Context, paymentID string) (*paymentclient.Payment, error)
}

// OrderLocker serializes work on a single order across processes
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID string, ttl, wait time.Duration) (func(), error)
}

type OrderNotifier interface {
	NotifyOrderPaid(ctx context.Context, order *models.Order) error
}

type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (noopPublisher) PublishOrderPaid(context.Context, *models.OrderPaidEvent) error {
	return nil
}

func (noopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
