package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer represents a storefront customer
type Customer struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID         string          `db:"id" json:"id"`
	CustomerID string          `db:"customer_id" json:"customer_id"`
	Status     OrderStatus     `db:"status" json:"status"`
	Total      decimal.Decimal `db:"total" json:"total"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`

	Items    []OrderItem `db:"-" json:"items,omitempty"`
	Customer *Customer   `db:"-" json:"customer,omitempty"`
}

// OrderItem is an immutable snapshot of one variant line within an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   string          `db:"order_id" json:"order_id"`
	VariantID string          `db:"variant_id" json:"variant_id"`
	Name      string          `db:"name" json:"name"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Stock represents the quantity of a variant held in one warehouse
type Stock struct {
	ID          int64     `db:"id" json:"id"`
	VariantID   string    `db:"variant_id" json:"variant_id"`
	WarehouseID string    `db:"warehouse_id" json:"warehouse_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentNotification is the body the payment processor posts to the webhook
type PaymentNotification struct {
	Type   string                  `json:"type"`
	Action string                  `json:"action"`
	Data   PaymentNotificationData `json:"data"`
}

type PaymentNotificationData struct {
	ID string `json:"id"`
}

// Notification kinds and actions handled by the webhook
const (
	NotificationTypePayment      = "payment"
	NotificationActionCreated    = "payment.created"
	NotificationActionUpdated    = "payment.updated"
	PaymentStatusApproved        = "approved"
	PaymentStatusRejected        = "rejected"
	PaymentStatusPending         = "pending"
	PaymentStatusInProcess       = "in_process"
	CancellationReasonRejected   = "payment_rejected"
	CancellationReasonBackoffice = "backoffice"
)

// IsPaymentChange reports whether the notification announces a payment creation or update
func (n *PaymentNotification) IsPaymentChange() bool {
	if n.Type != NotificationTypePayment {
		return false
	}
	return n.Action == NotificationActionCreated || n.Action == NotificationActionUpdated
}
