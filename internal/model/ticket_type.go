package model

import (
	"time"

	"github.com/google/uuid"
)

// TicketType is the master inventory record for one class of ticket
// within an event (e.g. "General Admission", "VIP").  The three
// quantity counters together define how many units can still be sold:
//
//	available-to-sell = QuantityAvailable - QuantitySold - QuantityReserved
//
// QuantitySold only grows when a held unit is committed by a completed
// purchase, and shrinks only through the post-purchase cancellation
// flow.  QuantityReserved tracks live holds.  The ledger maintains
// QuantitySold + QuantityReserved <= QuantityAvailable with guarded
// single-statement updates; no other code path may write these counters.
type TicketType struct {
	ID                uuid.UUID // ticket_types.id
	EventID           uuid.UUID // ticket_types.event_id
	Name              string    // ticket_types.name
	PriceCents        int64     // ticket_types.price_cents
	QuantityAvailable int       // ticket_types.quantity_available (total sellable)
	QuantitySold      int       // ticket_types.quantity_sold (committed sales)
	QuantityReserved  int       // ticket_types.quantity_reserved (live holds)
	SaleStart         time.Time // ticket_types.sale_start
	SaleEnd           time.Time // ticket_types.sale_end
	PerPersonLimit    int       // ticket_types.per_person_limit
	CreatedAt         time.Time // ticket_types.created_at
	UpdatedAt         time.Time // ticket_types.updated_at
}

// Remaining returns the number of units that can still be held.
func (t TicketType) Remaining() int {
	return t.QuantityAvailable - t.QuantitySold - t.QuantityReserved
}

// SaleOpenAt reports whether the sale window covers the given instant.
func (t TicketType) SaleOpenAt(now time.Time) bool {
	return !now.Before(t.SaleStart) && !now.After(t.SaleEnd)
}

// TicketTypeAvailability is the read-only view served by the
// availability endpoint.  It exposes only the derived remaining count,
// never the raw counters.
type TicketTypeAvailability struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	Available    int       `json:"available"`
}
