package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment lifecycle of an order.  The observed
// clients treat this as a free string; internally it is a closed set
// and only serialized to string at the API boundary.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Order is the durable record of a purchase.  Orders are created only
// by the issuer after inventory has been committed, together with
// their items and tickets in a single transaction.  A COMPLETED order
// is immutable except for the transition to CANCELLED via the
// cancellation flow.
type Order struct {
	ID               uuid.UUID     // orders.id
	OrderNumber      string        // orders.order_number (unique, human-facing)
	BuyerID          uuid.UUID     // orders.buyer_id
	EventID          uuid.UUID     // orders.event_id
	ReservationID    uuid.UUID     // orders.reservation_id
	SubtotalCents    int64         // orders.subtotal_cents
	ServiceFeeCents  int64         // orders.service_fee_cents
	TaxCents         int64         // orders.tax_cents
	TotalCents       int64         // orders.total_cents
	Currency         string        // orders.currency (ISO 4217)
	PaymentStatus    PaymentStatus // orders.payment_status
	TransactionID    string        // orders.transaction_id (gateway reference)
	CreatedAt        time.Time     // orders.created_at
	UpdatedAt        time.Time     // orders.updated_at
	Items            []OrderItem   // loaded with the order
	Tickets          []Ticket      // loaded with the order
}

// OrderItem is one line of an order.  The sum of item quantities must
// equal the quantity of the originating reservation; the issuer builds
// items and tickets from the same loop so the two cannot diverge.
type OrderItem struct {
	ID             uuid.UUID // order_items.id
	OrderID        uuid.UUID // order_items.order_id
	TicketTypeID   uuid.UUID // order_items.ticket_type_id
	Quantity       int       // order_items.quantity
	UnitPriceCents int64     // order_items.unit_price_cents
	FeeCents       int64     // order_items.fee_cents
	SubtotalCents  int64     // order_items.subtotal_cents
	TotalCents     int64     // order_items.total_cents
}
