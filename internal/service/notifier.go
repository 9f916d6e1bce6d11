package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/mailer"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Notifier emails the customer and the sales team when an order is paid
type Notifier struct {
	sender       mailer.Sender
	salesAddress string
	logger       *zap.Logger
}

// NewNotifier creates a new notifier. An empty salesAddress disables the sales copy.
func NewNotifier(sender mailer.Sender, salesAddress string) *Notifier {
	return &Notifier{
		sender:       sender,
		salesAddress: strings.TrimSpace(salesAddress),
		logger:       util.GetLogger(),
	}
}

// NotifyOrderPaid sends both emails independently and joins their errors
func (n *Notifier) NotifyOrderPaid(ctx context.Context, order *models.Order) error {
	var errs []error

	if order.Customer == nil || strings.TrimSpace(order.Customer.Email) == "" {
		n.logger.Warn("Paid order has no customer email", zap.String("order_id", order.ID))
		util.EmailsSentTotal.WithLabelValues("customer", "skipped").Inc()
	} else if err := n.send(ctx, "customer", customerConfirmation(order)); err != nil {
		errs = append(errs, err)
	}

	if n.salesAddress == "" {
		util.EmailsSentTotal.WithLabelValues("sales", "skipped").Inc()
	} else if err := n.send(ctx, "sales", salesNotice(order, n.salesAddress)); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, kind string, msg mailer.Message) error {
	if err := n.sender.Send(ctx, msg); err != nil {
		util.EmailsSentTotal.WithLabelValues(kind, "failed").Inc()
		return fmt.Errorf("%s email: %w", kind, err)
	}
	util.EmailsSentTotal.WithLabelValues(kind, "sent").Inc()
	return nil
}

func customerConfirmation(order *models.Order) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nWe received your payment for order %s.\n\n", order.Customer.Name, order.ID)
	writeItems(&b, order)
	b.WriteString("\nThank you for your purchase.\n")

	return mailer.Message{
		To:      order.Customer.Email,
		Subject: fmt.Sprintf("Order %s confirmed", order.ID),
		Body:    b.String(),
	}
}

func salesNotice(order *models.Order, to string) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s was paid.\n\n", order.ID)
	if order.Customer != nil {
		fmt.Fprintf(&b, "Customer: %s <%s>\n", order.Customer.Name, order.Customer.Email)
		if order.Customer.Phone != nil {
			fmt.Fprintf(&b, "Phone: %s\n", *order.Customer.Phone)
		}
		if order.Customer.Address != nil {
			fmt.Fprintf(&b, "Address: %s\n", *order.Customer.Address)
		}
		b.WriteString("\n")
	}
	writeItems(&b, order)

	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("New paid order %s", order.ID),
		Body:    b.String(),
	}
}

func writeItems(b *strings.Builder, order *models.Order) {
	for _, item := range order.Items {
		fmt.Fprintf(b, "%d x %s (%s) = %s\n",
			item.Quantity, item.Name, item.UnitPrice.StringFixed(2), item.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(b, "Total: %s\n", order.Total.StringFixed(2))
}
