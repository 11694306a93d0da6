package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/utils"
)

// Fee and tax rates in basis points of the subtotal.
const (
	serviceFeeBps = 1000 // 10%
	taxBps        = 800  // 8%
)

// OrderStore is the persistence contract of the issuer and the
// cancellation flow.  *repository.OrderRepo satisfies it.
type OrderStore interface {
	CreateWithTickets(ctx context.Context, o *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// Pricing is the fee breakdown of an order.
type Pricing struct {
	SubtotalCents   int64
	ServiceFeeCents int64
	TaxCents        int64
	TotalCents      int64
}

// Issuer materializes Orders and Tickets once payment has been
// confirmed and inventory committed.  Items and tickets are built from
// the same reservation quantity in one loop and written in one
// transaction, so an order whose ticket count disagrees with its item
// quantities cannot exist.
type Issuer struct {
	orders   OrderStore
	qrSecret string
	currency string
}

// NewIssuer builds an Issuer signing QR payloads with the given secret.
func NewIssuer(orders OrderStore, qrSecret string) *Issuer {
	return &Issuer{orders: orders, qrSecret: qrSecret, currency: "USD"}
}

// Quote prices a purchase of qty units at the given unit price.
func (i *Issuer) Quote(unitPriceCents int64, qty int) Pricing {
	subtotal := unitPriceCents * int64(qty)
	fee := subtotal * serviceFeeBps / 10000
	tax := subtotal * taxBps / 10000
	return Pricing{
		SubtotalCents:   subtotal,
		ServiceFeeCents: fee,
		TaxCents:        tax,
		TotalCents:      subtotal + fee + tax,
	}
}

// Issue creates the Order, its single OrderItem and one Ticket per
// purchased unit, persisting all of them atomically.  Called only
// after the inventory commit succeeded; the charge supplies the
// gateway transaction reference recorded on the order.
func (i *Issuer) Issue(ctx context.Context, res *model.Reservation, unitPriceCents int64, charge *Charge, holderName string) (*model.Order, error) {
	pricing := i.Quote(unitPriceCents, res.Quantity)
	now := time.Now().UTC()
	orderID := uuid.New()

	order := &model.Order{
		ID:              orderID,
		OrderNumber:     newOrderNumber(now),
		BuyerID:         res.BuyerID,
		EventID:         res.EventID,
		ReservationID:   res.ID,
		SubtotalCents:   pricing.SubtotalCents,
		ServiceFeeCents: pricing.ServiceFeeCents,
		TaxCents:        pricing.TaxCents,
		TotalCents:      pricing.TotalCents,
		Currency:        i.currency,
		PaymentStatus:   model.PaymentCompleted,
		TransactionID:   charge.TransactionID,
		CreatedAt:       now,
		Items: []model.OrderItem{{
			ID:             uuid.New(),
			OrderID:        orderID,
			TicketTypeID:   res.TicketTypeID,
			Quantity:       res.Quantity,
			UnitPriceCents: unitPriceCents,
			FeeCents:       pricing.ServiceFeeCents,
			SubtotalCents:  pricing.SubtotalCents,
			TotalCents:     pricing.TotalCents,
		}},
	}

	for seq := 1; seq <= res.Quantity; seq++ {
		num := newTicketNumber(now, seq)
		qr, err := utils.SignQRCode(i.qrSecret, utils.QRClaims{
			TicketNumber: num,
			EventID:      res.EventID,
			HolderID:     res.BuyerID,
		})
		if err != nil {
			return nil, fmt.Errorf("sign qr code: %w", err)
		}
		order.Tickets = append(order.Tickets, model.Ticket{
			ID:           uuid.New(),
			OrderID:      orderID,
			TicketTypeID: res.TicketTypeID,
			TicketNumber: num,
			QRCode:       qr,
			HolderName:   holderName,
			Status:       model.TicketActive,
			CreatedAt:    now,
		})
	}

	if len(order.Tickets) != res.Quantity {
		return nil, fmt.Errorf("issuance mismatch: %d tickets for quantity %d",
			len(order.Tickets), res.Quantity)
	}
	if err := i.orders.CreateWithTickets(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return order, nil
}

// newOrderNumber builds a human-facing order number.  The millisecond
// timestamp plus a random suffix keeps collisions out of practical
// reach; the unique column catches the rest.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%04d", now.UnixMilli(), rand.Intn(10000))
}

// newTicketNumber builds a unique ticket number carrying the issue
// timestamp and the unit's sequence within its order.
func newTicketNumber(now time.Time, seq int) string {
	return fmt.Sprintf("TKT-%d-%d-%04d", now.UnixMilli(), seq, rand.Intn(10000))
}
