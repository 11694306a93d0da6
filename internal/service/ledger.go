package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eventbooking/ticketing/internal/model"
)

// mirrorTTL bounds how long a stale availability mirror entry can
// outlive its ticket type in Redis.
const mirrorTTL = 24 * time.Hour

// TicketTypeStore is the persistence contract the ledger needs.  The
// counter mutations must be atomic: each call either applies fully
// under its invariant guard or fails without effect.
// *repository.TicketTypeRepo satisfies it.
type TicketTypeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.TicketType, error)
	HoldUnits(ctx context.Context, id uuid.UUID, qty int) error
	CommitUnits(ctx context.Context, id uuid.UUID, qty int) error
	ReleaseUnits(ctx context.Context, id uuid.UUID, qty int) error
	UncommitUnits(ctx context.Context, id uuid.UUID, qty int) error
	AvailabilityByEvent(ctx context.Context, eventID uuid.UUID) ([]model.TicketTypeAvailability, error)
	BuyerUnits(ctx context.Context, ticketTypeID, buyerID uuid.UUID) (int, error)
}

// Ledger is the authoritative gatekeeper for sellable inventory.  All
// checks that depend on per-request context (sale window, per-person
// limit) happen here before the atomic counter swap in the store; the
// swap itself is the only oversell defense, so the pre-checks are
// advisory filters, not synchronization.
//
// After every mutation the ledger mirrors the remaining count into
// Redis under "inventory:<ticketTypeID>" for consumers that want cheap
// reads.  The mirror is best effort: a nil or failing Redis client
// never fails a hold.
type Ledger struct {
	types  TicketTypeStore
	rdb    *redis.Client
	logger *zap.Logger
}

// NewLedger builds a Ledger.  rdb may be nil to disable the mirror.
func NewLedger(types TicketTypeStore, rdb *redis.Client, logger *zap.Logger) *Ledger {
	return &Ledger{types: types, rdb: rdb, logger: logger}
}

// TicketType fetches the master record for a ticket type.
func (l *Ledger) TicketType(ctx context.Context, id uuid.UUID) (*model.TicketType, error) {
	return l.types.GetByID(ctx, id)
}

// TryHold places an atomic hold of qty units for the buyer.  It
// returns the ticket type so callers can price the hold without a
// second read.  Failure modes, in check order: unknown ticket type,
// sale window closed, per-person limit exceeded, insufficient
// inventory.
func (l *Ledger) TryHold(ctx context.Context, buyerID, ticketTypeID uuid.UUID, qty int) (*model.TicketType, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	tt, err := l.types.GetByID(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if !tt.SaleOpenAt(time.Now().UTC()) {
		return nil, ErrSaleClosed
	}
	owned, err := l.types.BuyerUnits(ctx, ticketTypeID, buyerID)
	if err != nil {
		return nil, fmt.Errorf("count buyer units: %w", err)
	}
	if tt.PerPersonLimit > 0 && owned+qty > tt.PerPersonLimit {
		return nil, ErrLimitExceeded
	}
	if err := l.types.HoldUnits(ctx, ticketTypeID, qty); err != nil {
		return nil, err
	}
	l.refreshMirror(ctx, ticketTypeID)
	return tt, nil
}

// Commit converts qty held units into sold units.  A failure here is a
// consistency violation, not contention: it means the hold this commit
// was supposed to consume is gone.
func (l *Ledger) Commit(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	if err := l.types.CommitUnits(ctx, ticketTypeID, qty); err != nil {
		l.logger.Error("inventory commit refused",
			zap.String("ticket_type_id", ticketTypeID.String()),
			zap.Int("quantity", qty),
			zap.Error(err))
		return err
	}
	l.refreshMirror(ctx, ticketTypeID)
	return nil
}

// Release returns qty held units to the sellable pool.
func (l *Ledger) Release(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	if err := l.types.ReleaseUnits(ctx, ticketTypeID, qty); err != nil {
		l.logger.Error("inventory release refused",
			zap.String("ticket_type_id", ticketTypeID.String()),
			zap.Int("quantity", qty),
			zap.Error(err))
		return err
	}
	l.refreshMirror(ctx, ticketTypeID)
	return nil
}

// Uncommit reverses a committed sale during post-completion
// cancellation, returning qty sold units to the pool.
func (l *Ledger) Uncommit(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	if err := l.types.UncommitUnits(ctx, ticketTypeID, qty); err != nil {
		l.logger.Error("inventory uncommit refused",
			zap.String("ticket_type_id", ticketTypeID.String()),
			zap.Int("quantity", qty),
			zap.Error(err))
		return err
	}
	l.refreshMirror(ctx, ticketTypeID)
	return nil
}

// Availability returns the derived remaining counts for all ticket
// types of an event.  The view is read-only and may be stale the
// moment it is produced; TryHold is the only authoritative check.
func (l *Ledger) Availability(ctx context.Context, eventID uuid.UUID) ([]model.TicketTypeAvailability, error) {
	return l.types.AvailabilityByEvent(ctx, eventID)
}

// refreshMirror writes the remaining count for a ticket type into
// Redis.  Mirror failures are logged and swallowed.
func (l *Ledger) refreshMirror(ctx context.Context, ticketTypeID uuid.UUID) {
	if l.rdb == nil {
		return
	}
	tt, err := l.types.GetByID(ctx, ticketTypeID)
	if err != nil {
		l.logger.Warn("availability mirror skipped", zap.Error(err))
		return
	}
	key := "inventory:" + ticketTypeID.String()
	if err := l.rdb.Set(ctx, key, tt.Remaining(), mirrorTTL).Err(); err != nil {
		l.logger.Warn("availability mirror write failed",
			zap.String("key", key), zap.Error(err))
	}
}
