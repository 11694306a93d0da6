// Package repository provides MySQL data access for the reservation
// and purchase engine.  This file defines sentinel error values reused
// across repositories.  Higher layers compare with errors.Is and map
// them to HTTP status codes at the boundary; none of these are ever
// retried by the engine itself.
package repository

import "errors"

// ErrTicketTypeNotFound is returned when a ticket type id does not
// exist.  Handlers translate this into a 404 response.
var ErrTicketTypeNotFound = errors.New("ticket type not found")

// ErrReservationNotFound is returned when a reservation id does not
// exist.  Handlers translate this into a 404 response.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrOrderNotFound is returned when an order id does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrInsufficientInventory is returned when a hold request asks for
// more units than remain sellable.  Handlers translate this into a
// 409 response; the client must retry with a smaller quantity or not
// at all.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// ErrConflict is returned when a guarded counter update finds the row
// in a state that would violate the inventory invariant (for example
// committing more units than are reserved).  It indicates a bug or a
// lost compensation, never a normal contention outcome.
var ErrConflict = errors.New("conflict")
