package model

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the closed set of states a reservation moves
// through.  Transitions happen only via compare-and-swap on the status
// column, so a writer that loses a race observes the winner's state
// instead of clobbering it.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a short-lived hold on inventory units.  A HELD
// reservation reduces available-to-sell without touching the sold
// counter.  It either gets confirmed by a purchase saga before
// ExpiresAt, or the expiry sweep (or an explicit release) returns its
// units to the pool.
//
// Fields:
//
//	ID           – primary key.
//	TicketTypeID – inventory row the hold was taken against.
//	EventID      – event the ticket type belongs to (denormalized for lookups).
//	BuyerID      – authenticated buyer who owns the hold.
//	Quantity     – number of units held.
//	Status       – current lifecycle state.
//	HoldToken    – opaque correlation token returned to the client.
//	CreatedAt    – when the hold was taken.
//	ExpiresAt    – when the sweep may expire a still-HELD reservation.
type Reservation struct {
	ID           uuid.UUID
	TicketTypeID uuid.UUID
	EventID      uuid.UUID
	BuyerID      uuid.UUID
	Quantity     int
	Status       ReservationStatus
	HoldToken    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the reservation's TTL has passed at the given
// instant.  It says nothing about the status column; the sweep and the
// purchase saga race for the CAS.
func (r *Reservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
