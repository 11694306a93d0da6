// Package service implements the reservation and purchase engine: the
// inventory ledger, the reservation manager with its expiry sweep, the
// purchase saga coordinator, the idempotency store and the order/ticket
// issuer.  Repositories do the SQL; this package owns the business
// rules and the concurrency protocol between them.
package service

import "errors"

// ErrSaleClosed is returned when a hold is requested outside the
// ticket type's sale window.
var ErrSaleClosed = errors.New("sale closed")

// ErrLimitExceeded is returned when a hold would push the buyer past
// the per-person limit for a ticket type, counting holds they already
// have and units they already purchased.
var ErrLimitExceeded = errors.New("per-person limit exceeded")

// ErrInvalidState is returned when an operation targets a reservation
// or order whose status does not permit it, e.g. purchasing an EXPIRED
// reservation or cancelling a PENDING order.
var ErrInvalidState = errors.New("invalid state")

// ErrForbidden is returned when a buyer operates on a reservation or
// order owned by someone else.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidQuantity is returned for non-positive hold quantities.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ErrPurchaseInProgress is returned when a purchase arrives while
// another request with the same idempotency key is still running.
// Handlers translate it into a 409 so the client re-polls instead of
// racing itself.
var ErrPurchaseInProgress = errors.New("purchase already in progress")

// ErrPaymentDeclined is returned when the payment provider rejects the
// charge.  It is never retried; anything the gateway says beyond
// "declined" stays out of client responses.
var ErrPaymentDeclined = errors.New("payment declined")
