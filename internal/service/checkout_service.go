package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/paymentclient"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutConfig holds the processor-facing settings of a checkout session
type CheckoutConfig struct {
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	NotificationURL string
	CurrencyID      string
}

// CheckoutService turns a cart into a pending order and a hosted payment session
type CheckoutService struct {
	store     CheckoutStore
	payments  PaymentSessions
	publisher OrderEventPublisher
	cfg       CheckoutConfig
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. publisher may be nil.
func NewCheckoutService(store CheckoutStore, payments PaymentSessions, publisher OrderEventPublisher, cfg CheckoutConfig) *CheckoutService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &CheckoutService{
		store:     store,
		payments:  payments,
		publisher: publisher,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// CartLine is one line of the storefront cart
type CartLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CheckoutRequest represents a request to start checkout
type CheckoutRequest struct {
	Cart       []CartLine `json:"cart"`
	CustomerID string     `json:"customerId"`
}

// CheckoutResponse carries the redirect to the hosted payment page
type CheckoutResponse struct {
	OrderID   string `json:"order_id"`
	InitPoint string `json:"init_point"`
}

// CreateCheckout persists a PENDING order for the cart and opens a payment
// session whose external reference is the order id. If the processor call
// fails the order stays behind as PENDING.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateCheckout(req); err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	customerID := strings.TrimSpace(req.CustomerID)

	if _, err := s.store.GetCustomerByID(ctx, customerID); err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			util.CheckoutSessionsTotal.WithLabelValues("invalid").Inc()
			return nil, models.NewValidationError(fmt.Sprintf("customer %s not found", customerID))
		}
		util.CheckoutSessionsTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	order := buildOrder(customerID, req.Cart)
	span.SetAttributes(attribute.String("order.id", order.ID))

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("db_error").Inc()
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("customer_id", order.CustomerID),
		zap.String("total", order.Total.String()))

	if err := s.publisher.PublishOrderCreated(ctx, newOrderCreatedEvent(order)); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.String("order_id", order.ID), zap.Error(err))
	}

	pref, err := s.payments.CreatePreference(ctx, s.preferenceFor(order, req.Cart))
	if err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("processor_error").Inc()
		util.CheckoutOrphanedOrdersTotal.Inc()
		util.RecordError(span, err)
		s.logger.Error("Payment session creation failed, order left PENDING",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create payment session for order %s: %w", order.ID, err)
	}

	util.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Checkout session created",
		zap.String("order_id", order.ID),
		zap.String("preference_id", pref.ID))

	return &CheckoutResponse{OrderID: order.ID, InitPoint: pref.InitPoint}, nil
}

func validateCheckout(req *CheckoutRequest) error {
	if req == nil || len(req.Cart) == 0 {
		return models.NewValidationError("cart is empty")
	}

	for i, line := range req.Cart {
		if strings.TrimSpace(line.ID) == "" {
			return models.NewValidationError(fmt.Sprintf("cart line %d: id is required", i))
		}
		if line.Quantity <= 0 {
			return models.NewValidationError(fmt.Sprintf("cart line %d: quantity must be positive", i))
		}
		if line.Price.IsNegative() {
			return models.NewValidationError(fmt.Sprintf("cart line %d: price must not be negative", i))
		}
	}

	if strings.TrimSpace(req.CustomerID) == "" {
		return models.NewValidationError("customerId is required")
	}

	return nil
}

// buildOrder snapshots the cart into a PENDING order with stored subtotals
func buildOrder(customerID string, cart []CartLine) *models.Order {
	order := &models.Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Status:     models.OrderStatusPending,
		Total:      decimal.Zero,
		Items:      make([]models.OrderItem, 0, len(cart)),
	}

	for _, line := range cart {
		subtotal := line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		order.Items = append(order.Items, models.OrderItem{
			OrderID:   order.ID,
			VariantID: line.ID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
			Subtotal:  subtotal,
		})
		order.Total = order.Total.Add(subtotal)
	}

	return order
}

func (s *CheckoutService) preferenceFor(order *models.Order, cart []CartLine) *paymentclient.PreferenceRequest {
	items := make([]paymentclient.PreferenceItem, 0, len(cart))
	for _, line := range cart {
		title := line.Name
		if title == "" {
			title = line.ID
		}
		items = append(items, paymentclient.PreferenceItem{
			ID:         line.ID,
			Title:      title,
			Quantity:   line.Quantity,
			UnitPrice:  line.Price.InexactFloat64(),
			CurrencyID: s.cfg.CurrencyID,
		})
	}

	return &paymentclient.PreferenceRequest{
		Items: items,
		BackURLs: paymentclient.BackURLs{
			Success: s.cfg.SuccessURL,
			Failure: s.cfg.FailureURL,
			Pending: s.cfg.PendingURL,
		},
		AutoReturn:        "approved",
		ExternalReference: order.ID,
		NotificationURL:   s.cfg.NotificationURL,
	}
}
