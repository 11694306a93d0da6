package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/utils"
)

// sweepBatchSize caps how many expired reservations one sweep pass
// claims, so a backlog after downtime drains in bounded chunks.
const sweepBatchSize = 100

// ReservationStore is the persistence contract of the reservation
// manager.  *repository.ReservationRepo satisfies it.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
}

// ReservationManager owns the reservation lifecycle.  Every status
// transition goes through a CAS on the status column, which is what
// makes the expiry sweep safe to run concurrently with purchases: for
// any reservation, either the saga confirms it first or the sweep
// expires it first, and the loser sees ErrInvalidState instead of a
// double transition.
type ReservationManager struct {
	store  ReservationStore
	ledger *Ledger
	ttl    time.Duration
	logger *zap.Logger
}

// NewReservationManager builds a ReservationManager with the given
// hold TTL.
func NewReservationManager(store ReservationStore, ledger *Ledger, ttl time.Duration, logger *zap.Logger) *ReservationManager {
	return &ReservationManager{store: store, ledger: ledger, ttl: ttl, logger: logger}
}

// Reserve takes an atomic inventory hold and persists a HELD
// reservation for it.  If the insert fails after the hold succeeded,
// the hold is released again so no capacity leaks.
func (m *ReservationManager) Reserve(ctx context.Context, buyerID, ticketTypeID uuid.UUID, qty int) (*model.Reservation, error) {
	tt, err := m.ledger.TryHold(ctx, buyerID, ticketTypeID, qty)
	if err != nil {
		return nil, err
	}
	token, err := utils.RandomToken(16)
	if err != nil {
		_ = m.ledger.Release(ctx, ticketTypeID, qty)
		return nil, fmt.Errorf("generate hold token: %w", err)
	}
	now := time.Now().UTC()
	res := &model.Reservation{
		ID:           uuid.New(),
		TicketTypeID: ticketTypeID,
		EventID:      tt.EventID,
		BuyerID:      buyerID,
		Quantity:     qty,
		Status:       model.ReservationHeld,
		HoldToken:    token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, res); err != nil {
		_ = m.ledger.Release(ctx, ticketTypeID, qty)
		return nil, fmt.Errorf("persist reservation: %w", err)
	}
	return res, nil
}

// Get fetches a reservation by id.
func (m *ReservationManager) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	return m.store.GetByID(ctx, id)
}

// Confirm transitions HELD → CONFIRMED.  This is the first forward
// step of every purchase saga; winning this CAS is what guarantees at
// most one saga per reservation ever reaches payment.
func (m *ReservationManager) Confirm(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	res, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := m.store.UpdateStatusCAS(ctx, id, model.ReservationHeld, model.ReservationConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}
	res.Status = model.ReservationConfirmed
	return res, nil
}

// Release is the client-initiated HELD → RELEASED transition,
// returning the held units to the pool.
func (m *ReservationManager) Release(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, model.ReservationHeld, model.ReservationReleased)
}

// Abort is the saga compensation path: a CONFIRMED reservation whose
// purchase failed goes back to RELEASED and its units return to the
// pool.
func (m *ReservationManager) Abort(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, model.ReservationConfirmed, model.ReservationReleased)
}

// AbortSettled marks a CONFIRMED reservation RELEASED without touching
// the ledger.  Compensation paths that already returned the units via
// an inventory uncommit must use this: the commit moved the units out
// of reserved, so a release here would consume other buyers' live
// holds instead.
func (m *ReservationManager) AbortSettled(ctx context.Context, id uuid.UUID) error {
	ok, err := m.store.UpdateStatusCAS(ctx, id, model.ReservationConfirmed, model.ReservationReleased)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

func (m *ReservationManager) transition(ctx context.Context, id uuid.UUID, from, to model.ReservationStatus) error {
	res, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := m.store.UpdateStatusCAS(ctx, id, from, to)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return m.ledger.Release(ctx, res.TicketTypeID, res.Quantity)
}

// RunExpirySweep blocks, expiring stale holds every interval until the
// context is cancelled.  Run it in its own goroutine.
func (m *ReservationManager) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("expiry sweep started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			m.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires one batch of overdue HELD reservations.  Each
// expiry is an individual CAS, so a purchase racing the sweep on the
// same reservation cannot lose units: whoever wins the swap owns the
// follow-up, and the loser backs off.
func (m *ReservationManager) SweepOnce(ctx context.Context) {
	overdue, err := m.store.ListExpired(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		m.logger.Error("expiry sweep query failed", zap.Error(err))
		return
	}
	expired := 0
	for _, res := range overdue {
		ok, err := m.store.UpdateStatusCAS(ctx, res.ID, model.ReservationHeld, model.ReservationExpired)
		if err != nil {
			m.logger.Error("expire reservation failed",
				zap.String("reservation_id", res.ID.String()), zap.Error(err))
			continue
		}
		if !ok {
			// a purchase confirmed it between the query and the CAS
			continue
		}
		if err := m.ledger.Release(ctx, res.TicketTypeID, res.Quantity); err != nil {
			m.logger.Error("release expired hold failed",
				zap.String("reservation_id", res.ID.String()), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		m.logger.Info("expired stale reservations", zap.Int("count", expired))
	}
}
