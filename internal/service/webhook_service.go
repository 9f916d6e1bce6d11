package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookOutcome labels what a notification delivery did
type WebhookOutcome string

const (
	OutcomeIgnored          WebhookOutcome = "ignored"
	OutcomeMissingPaymentID WebhookOutcome = "missing_payment_id"
	OutcomeLookupFailed     WebhookOutcome = "lookup_failed"
	OutcomeMissingReference WebhookOutcome = "missing_reference"
	OutcomeOrderNotFound    WebhookOutcome = "order_not_found"
	OutcomePaid             WebhookOutcome = "paid"
	OutcomeAlreadyPaid      WebhookOutcome = "already_paid"
	OutcomeCancelled        WebhookOutcome = "cancelled"
	OutcomeAlreadyCancelled WebhookOutcome = "already_cancelled"
	OutcomeAlreadyProcessed WebhookOutcome = "already_processed"
	OutcomeConflict         WebhookOutcome = "conflict"
	OutcomeNoTransition     WebhookOutcome = "no_transition"
	OutcomeError            WebhookOutcome = "error"
)

// WebhookService reconciles processor notifications with local orders.
// The notification body is never trusted: payment state is always fetched
// from the processor before any order is touched.
type WebhookService struct {
	store     WebhookStore
	payments  PaymentLookup
	notifier  OrderNotifier
	publisher OrderEventPublisher
	locker    OrderLocker
	lockTTL   time.Duration
	lockWait  time.Duration
	logger    *zap.Logger
}

// WebhookOption configures optional collaborators
type WebhookOption func(*WebhookService)

// WithOrderLock serializes deliveries for the same order through locker
func WithOrderLock(locker OrderLocker, ttl, wait time.Duration) WebhookOption {
	return func(s *WebhookService) {
		s.locker = locker
		s.lockTTL = ttl
		s.lockWait = wait
	}
}

// WithEventPublisher emits ORDER_PAID and ORDER_CANCELLED after each transition
func WithEventPublisher(publisher OrderEventPublisher) WebhookOption {
	return func(s *WebhookService) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// NewWebhookService creates a new webhook service
func NewWebhookService(store WebhookStore, payments PaymentLookup, notifier OrderNotifier, opts ...WebhookOption) *WebhookService {
	s := &WebhookService{
		store:     store,
		payments:  payments,
		notifier:  notifier,
		publisher: noopPublisher{},
		logger:    util.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleNotification processes one delivery. The returned error is only for
// logging; every outcome is acknowledged to the processor.
func (s *WebhookService) HandleNotification(ctx context.Context, n *models.PaymentNotification) (outcome WebhookOutcome, err error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleNotification")
	defer span.End()

	defer func() {
		util.WebhookEventsTotal.WithLabelValues(string(outcome)).Inc()
		span.SetAttributes(attribute.String("webhook.outcome", string(outcome)))
		if err != nil {
			util.RecordError(span, err)
		}
	}()

	if n == nil || !n.IsPaymentChange() {
		return OutcomeIgnored, nil
	}

	paymentID := strings.TrimSpace(n.Data.ID)
	if paymentID == "" {
		s.logger.Warn("Payment notification without payment id", zap.String("action", n.Action))
		return OutcomeMissingPaymentID, nil
	}
	span.SetAttributes(attribute.String("payment.id", paymentID))

	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		s.logger.Error("Payment lookup failed", zap.String("payment_id", paymentID), zap.Error(err))
		return OutcomeLookupFailed, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
	}

	orderID := strings.TrimSpace(payment.ExternalReference)
	if orderID == "" {
		s.logger.Warn("Payment has no external reference",
			zap.String("payment_id", paymentID),
			zap.String("status", payment.Status))
		return OutcomeMissingReference, nil
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	if s.locker != nil {
		release, err := s.locker.LockOrder(ctx, orderID, s.lockTTL, s.lockWait)
		if err != nil {
			s.logger.Warn("Proceeding without order lock",
				zap.String("order_id", orderID),
				zap.Error(err))
		} else {
			defer release()
		}
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			s.logger.Warn("Payment references unknown order",
				zap.String("payment_id", paymentID),
				zap.String("order_id", orderID))
			return OutcomeOrderNotFound, nil
		}
		return OutcomeError, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	switch payment.Status {
	case models.PaymentStatusApproved:
		return s.markPaid(ctx, order, paymentID)
	case models.PaymentStatusRejected:
		return s.markCancelled(ctx, order, paymentID)
	default:
		s.logger.Info("Payment status requires no transition",
			zap.String("payment_id", paymentID),
			zap.String("order_id", orderID),
			zap.String("status", payment.Status))
		return OutcomeNoTransition, nil
	}
}

func (s *WebhookService) markPaid(ctx context.Context, order *models.Order, paymentID string) (WebhookOutcome, error) {
	switch order.Status {
	case models.OrderStatusPaid:
		s.logger.Info("Order already paid", zap.String("order_id", order.ID), zap.String("payment_id", paymentID))
		return OutcomeAlreadyPaid, nil
	case models.OrderStatusCancelled:
		s.logger.Warn("Approved payment for cancelled order",
			zap.String("order_id", order.ID),
			zap.String("payment_id", paymentID))
		return OutcomeConflict, nil
	}

	transitioned, err := s.store.MarkOrderPaid(ctx, order.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to mark order %s paid: %w", order.ID, err)
	}
	if !transitioned {
		s.logger.Info("Order left PENDING concurrently", zap.String("order_id", order.ID), zap.String("payment_id", paymentID))
		return OutcomeAlreadyProcessed, nil
	}

	order.Status = models.OrderStatusPaid
	util.OrdersPaidTotal.Inc()
	s.logger.Info("Order paid", zap.String("order_id", order.ID), zap.String("payment_id", paymentID))

	if s.notifier != nil {
		if err := s.notifier.NotifyOrderPaid(ctx, order); err != nil {
			s.logger.Error("Order paid but notification failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if err := s.publisher.PublishOrderPaid(ctx, newOrderPaidEvent(order, paymentID)); err != nil {
		s.logger.Error("Failed to publish OrderPaid event", zap.String("order_id", order.ID), zap.Error(err))
	}

	return OutcomePaid, nil
}

func (s *WebhookService) markCancelled(ctx context.Context, order *models.Order, paymentID string) (WebhookOutcome, error) {
	switch order.Status {
	case models.OrderStatusCancelled:
		return OutcomeAlreadyCancelled, nil
	case models.OrderStatusPaid:
		s.logger.Warn("Rejected payment for paid order",
			zap.String("order_id", order.ID),
			zap.String("payment_id", paymentID))
		return OutcomeConflict, nil
	}

	transitioned, err := s.store.MarkOrderCancelled(ctx, order.ID)
	if err != nil {
		return OutcomeError, fmt.Errorf("failed to cancel order %s: %w", order.ID, err)
	}
	if !transitioned {
		return OutcomeAlreadyProcessed, nil
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled after rejected payment",
		zap.String("order_id", order.ID),
		zap.String("payment_id", paymentID))

	if err := s.publisher.PublishOrderCancelled(ctx, newOrderCancelledEvent(order.ID, models.CancellationReasonRejected)); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.String("order_id", order.ID), zap.Error(err))
	}

	return OutcomeCancelled, nil
}
