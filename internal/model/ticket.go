package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle of an issued ticket.
type TicketStatus string

const (
	TicketActive    TicketStatus = "ACTIVE"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketExpired   TicketStatus = "EXPIRED"
)

// Ticket is one admission unit issued for an order.  Exactly one
// ticket exists per purchased unit; tickets are inserted in the same
// transaction as their order.  QRCode is an opaque signed token that
// binds the ticket number, event and holder so gate scanners can
// verify it offline.
type Ticket struct {
	ID           uuid.UUID    // tickets.id
	OrderID      uuid.UUID    // tickets.order_id
	TicketTypeID uuid.UUID    // tickets.ticket_type_id
	TicketNumber string       // tickets.ticket_number (unique)
	QRCode       string       // tickets.qr_code (signed token)
	HolderName   string       // tickets.holder_name
	Status       TicketStatus // tickets.status
	CreatedAt    time.Time    // tickets.created_at
}
