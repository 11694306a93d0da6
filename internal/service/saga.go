package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/queue"
)

const (
	paymentAttempts = 3
	backoffBase     = 200 * time.Millisecond
	notifyTimeout   = 3 * time.Second
)

// SagaStore persists saga executions.  *repository.SagaRepo satisfies it.
type SagaStore interface {
	Create(ctx context.Context, s *model.SagaExecution) error
	Update(ctx context.Context, s *model.SagaExecution) error
	GetByKey(ctx context.Context, key string) (*model.SagaExecution, error)
}

// Notifier publishes order completion events for the notification
// worker.  Publish failures never fail a purchase.
type Notifier interface {
	PublishOrderCompleted(ctx context.Context, ev queue.OrderCompletedEvent) error
}

// PurchaseRequest is the input to one purchase saga.
type PurchaseRequest struct {
	IdempotencyKey  string
	ReservationID   uuid.UUID
	BuyerID         uuid.UUID
	PaymentMethodID string
	HolderName      string
}

// PurchaseResult is the stored, replayable outcome of a purchase saga.
// Status is the terminal saga state; OrderID and friends are zero for
// aborted runs.
type PurchaseResult struct {
	SagaID        uuid.UUID `json:"saga_id"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
}

// Coordinator orchestrates the purchase saga:
//
//	confirm reservation → charge payment → commit inventory
//	→ issue order/tickets → notify
//
// Each forward step runs at most once per saga.  On failure,
// compensations run in strict reverse order of the steps that
// committed, so the system never ends with money taken and no
// tickets, or tickets issued on released inventory.  The coordinator
// owns SagaExecution records and never touches inventory counters
// except through the ledger.
type Coordinator struct {
	reservations *ReservationManager
	ledger       *Ledger
	issuer       *Issuer
	orders       OrderStore
	gateway      PaymentGateway
	notifier     Notifier
	sagas        SagaStore
	idem         *IdempotencyStore
	logger       *zap.Logger
}

// NewCoordinator wires a Coordinator.  All dependencies must be
// non-nil except notifier, which may be nil to disable notifications.
func NewCoordinator(
	reservations *ReservationManager,
	ledger *Ledger,
	issuer *Issuer,
	orders OrderStore,
	gateway PaymentGateway,
	notifier Notifier,
	sagas SagaStore,
	idem *IdempotencyStore,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		reservations: reservations,
		ledger:       ledger,
		issuer:       issuer,
		orders:       orders,
		gateway:      gateway,
		notifier:     notifier,
		sagas:        sagas,
		idem:         idem,
		logger:       logger,
	}
}

// Purchase runs the saga for a reservation, guarded by the idempotency
// key.  Calling it again with the same key returns the stored result
// of the first run without re-executing any step; a concurrent
// duplicate gets ErrPurchaseInProgress.  Errors are returned only for
// failures before the saga starts (unknown or foreign reservation,
// invalid state); once the saga runs, its outcome arrives in the
// result's Status, ABORTED included.
func (c *Coordinator) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key required")
	}
	state, stored, err := c.idem.Begin(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency begin: %w", err)
	}
	switch state {
	case BeginDone:
		var result PurchaseResult
		if err := json.Unmarshal(stored, &result); err != nil {
			return nil, fmt.Errorf("stored result corrupt: %w", err)
		}
		return &result, nil
	case BeginInProgress:
		return nil, ErrPurchaseInProgress
	}

	// Fresh claim: any exit before the saga starts must abandon it so
	// the client can retry the key.
	res, err := c.reservations.Get(ctx, req.ReservationID)
	if err != nil {
		_ = c.idem.Abandon(ctx, req.IdempotencyKey)
		return nil, err
	}
	if res.BuyerID != req.BuyerID {
		_ = c.idem.Abandon(ctx, req.IdempotencyKey)
		return nil, ErrForbidden
	}
	tt, err := c.ledger.TicketType(ctx, res.TicketTypeID)
	if err != nil {
		_ = c.idem.Abandon(ctx, req.IdempotencyKey)
		return nil, err
	}

	// First forward step: exactly one saga may win this CAS for a
	// given reservation, which rules out double-spending a hold.
	res, err = c.reservations.Confirm(ctx, req.ReservationID)
	if err != nil {
		_ = c.idem.Abandon(ctx, req.IdempotencyKey)
		return nil, err
	}

	saga := &model.SagaExecution{
		ID:             uuid.New(),
		IdempotencyKey: req.IdempotencyKey,
		ReservationID:  res.ID,
		State:          model.SagaStarted,
		StepsCompleted: []string{"reservation_confirmed"},
	}
	if err := c.sagas.Create(ctx, saga); err != nil {
		// Nothing charged yet; undo the confirm and let the client retry.
		_ = c.reservations.Abort(ctx, res.ID)
		_ = c.idem.Abandon(ctx, req.IdempotencyKey)
		return nil, fmt.Errorf("persist saga: %w", err)
	}

	result := c.run(ctx, saga, res, tt, req)

	payload, err := json.Marshal(result)
	if err == nil {
		err = c.idem.Complete(ctx, req.IdempotencyKey, payload)
	}
	if err != nil {
		c.logger.Error("store saga outcome failed",
			zap.String("saga_id", saga.ID.String()), zap.Error(err))
	}
	return result, nil
}

// run executes the forward steps after the reservation is confirmed
// and a saga record exists.  It always returns a terminal result.
func (c *Coordinator) run(ctx context.Context, saga *model.SagaExecution, res *model.Reservation, tt *model.TicketType, req PurchaseRequest) *PurchaseResult {
	pricing := c.issuer.Quote(tt.PriceCents, res.Quantity)

	// Step: payment.
	c.advance(ctx, saga, model.SagaPaymentPending, "")
	charge, err := c.chargeWithRetry(ctx, req.PaymentMethodID, pricing.TotalCents)
	if err != nil {
		saga.FailureReason = failureReason(err)
		c.advance(ctx, saga, model.SagaPaymentFailed, "")
		c.compensate(ctx, saga, res, nil, true)
		return c.finish(ctx, saga, model.SagaAborted, nil)
	}
	saga.TransactionID = charge.TransactionID
	c.advance(ctx, saga, model.SagaPaymentConfirmed, "payment_charged")

	// Step: inventory commit.
	if err := c.ledger.Commit(ctx, res.TicketTypeID, res.Quantity); err != nil {
		saga.FailureReason = "inventory commit failed"
		c.advance(ctx, saga, model.SagaCommitFailed, "")
		c.advance(ctx, saga, model.SagaCompensatingRefund, "")
		c.compensate(ctx, saga, res, charge, true)
		return c.finish(ctx, saga, model.SagaAborted, nil)
	}
	c.advance(ctx, saga, model.SagaInventoryCommitted, "inventory_committed")

	// Step: issue order and tickets.
	order, err := c.issuer.Issue(ctx, res, tt.PriceCents, charge, req.HolderName)
	if err != nil {
		c.logger.Error("issuance failed, compensating",
			zap.String("saga_id", saga.ID.String()), zap.Error(err))
		saga.FailureReason = "issuance failed"
		c.advance(ctx, saga, model.SagaCompensatingRefund, "")
		if uerr := c.ledger.Uncommit(ctx, res.TicketTypeID, res.Quantity); uerr != nil {
			c.logger.Error("uncommit during compensation failed",
				zap.String("saga_id", saga.ID.String()), zap.Error(uerr))
		}
		// The uncommit already returned the units; the abort must not
		// release them a second time.
		c.compensate(ctx, saga, res, charge, false)
		return c.finish(ctx, saga, model.SagaAborted, nil)
	}
	saga.OrderID = &order.ID
	c.advance(ctx, saga, model.SagaTicketsIssued, "tickets_issued")

	// Step: notify.  Failure past this point is non-fatal: the order
	// and tickets stand and the notification is retried out of band.
	if err := c.notify(ctx, order); err != nil {
		c.logger.Warn("notification publish failed",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		c.advance(ctx, saga, model.SagaNotifyFailed, "")
		return c.finish(ctx, saga, model.SagaCompletedWithWarning, order)
	}
	c.advance(ctx, saga, model.SagaNotified, "notified")
	return c.finish(ctx, saga, model.SagaCompleted, order)
}

// compensate undoes committed forward steps in reverse order: refund
// the charge if one exists, then mark the confirmed reservation
// RELEASED.  restock controls whether the abort also returns the held
// units to the pool; it must be false once an inventory uncommit has
// already returned them, or the release would eat other buyers' holds.
func (c *Coordinator) compensate(ctx context.Context, saga *model.SagaExecution, res *model.Reservation, charge *Charge, restock bool) {
	if charge != nil {
		if err := c.refundWithRetry(ctx, charge); err != nil {
			// Money is at stake: loud log, manual follow-up.
			c.logger.Error("refund failed during compensation",
				zap.String("saga_id", saga.ID.String()),
				zap.String("transaction_id", charge.TransactionID),
				zap.Error(err))
		}
	}
	var err error
	if restock {
		err = c.reservations.Abort(ctx, res.ID)
	} else {
		err = c.reservations.AbortSettled(ctx, res.ID)
	}
	if err != nil {
		c.logger.Error("reservation release failed during compensation",
			zap.String("saga_id", saga.ID.String()),
			zap.String("reservation_id", res.ID.String()),
			zap.Error(err))
	}
}

func (c *Coordinator) finish(ctx context.Context, saga *model.SagaExecution, terminal model.SagaState, order *model.Order) *PurchaseResult {
	c.advance(ctx, saga, terminal, "")
	result := &PurchaseResult{SagaID: saga.ID, Status: string(terminal)}
	if order != nil {
		result.OrderID = order.ID
		result.OrderNumber = order.OrderNumber
		result.TransactionID = order.TransactionID
	}
	return result
}

// advance records a state transition, appending step to the completed
// list when it names one.  Persistence failures are logged but do not
// stop the saga: the in-memory state machine stays authoritative for
// this run and the record is audit trail.
func (c *Coordinator) advance(ctx context.Context, saga *model.SagaExecution, state model.SagaState, step string) {
	saga.State = state
	if step != "" {
		saga.StepsCompleted = append(saga.StepsCompleted, step)
	}
	if err := c.sagas.Update(ctx, saga); err != nil {
		c.logger.Error("persist saga transition failed",
			zap.String("saga_id", saga.ID.String()),
			zap.String("state", string(state)),
			zap.Error(err))
	}
}

// chargeWithRetry attempts the charge up to paymentAttempts times with
// exponential backoff.  Declines are final on the first occurrence;
// only transport-level failures are retried.
func (c *Coordinator) chargeWithRetry(ctx context.Context, paymentMethodID string, amountCents int64) (*Charge, error) {
	var lastErr error
	for attempt := 0; attempt < paymentAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}
		charge, err := c.gateway.Charge(ctx, paymentMethodID, amountCents, "USD")
		if err == nil {
			return charge, nil
		}
		if errors.Is(err, ErrPaymentDeclined) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("charge attempt failed",
			zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("charge retries exhausted: %w", lastErr)
}

func (c *Coordinator) refundWithRetry(ctx context.Context, charge *Charge) error {
	var lastErr error
	for attempt := 0; attempt < paymentAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffBase << (attempt - 1)):
			}
		}
		if err := c.gateway.Refund(ctx, charge.TransactionID, charge.AmountCents); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (c *Coordinator) notify(ctx context.Context, order *model.Order) error {
	if c.notifier == nil {
		return nil
	}
	numbers := make([]string, 0, len(order.Tickets))
	for _, tk := range order.Tickets {
		numbers = append(numbers, tk.TicketNumber)
	}
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	return c.notifier.PublishOrderCompleted(nctx, queue.OrderCompletedEvent{
		OrderID:       order.ID.String(),
		OrderNumber:   order.OrderNumber,
		BuyerID:       order.BuyerID.String(),
		EventID:       order.EventID.String(),
		TicketNumbers: numbers,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// CancelOrder is the client-initiated compensating flow for a
// COMPLETED order: refund the charge, cancel the order and its
// tickets, and return the sold units to inventory.  It is distinct
// from saga abort: the saga finished long ago; this unwinds its
// effects.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*model.Order, error) {
	order, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, ErrForbidden
	}
	if order.PaymentStatus != model.PaymentCompleted {
		return nil, ErrInvalidState
	}

	// The CAS inside Cancel picks a single winner among concurrent
	// cancel requests; only the winner refunds and releases inventory.
	ok, err := c.orders.Cancel(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	charge := &Charge{
		TransactionID: order.TransactionID,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
	}
	if err := c.refundWithRetry(ctx, charge); err != nil {
		c.logger.Error("refund failed during cancellation",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_id", order.TransactionID),
			zap.Error(err))
	}
	for _, it := range order.Items {
		if err := c.ledger.Uncommit(ctx, it.TicketTypeID, it.Quantity); err != nil {
			c.logger.Error("inventory release failed during cancellation",
				zap.String("order_id", orderID.String()),
				zap.String("ticket_type_id", it.TicketTypeID.String()),
				zap.Error(err))
		}
	}
	return c.orders.GetByID(ctx, orderID)
}

// SagaByKey exposes the stored execution for an idempotency key, used
// by the monitoring endpoint and by clients polling an in-flight
// purchase.
func (c *Coordinator) SagaByKey(ctx context.Context, key string) (*model.SagaExecution, error) {
	return c.sagas.GetByKey(ctx, key)
}

func failureReason(err error) string {
	if errors.Is(err, ErrPaymentDeclined) {
		return "payment declined"
	}
	return "payment failed"
}
