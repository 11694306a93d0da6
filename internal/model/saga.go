package model

import (
	"time"

	"github.com/google/uuid"
)

// SagaState enumerates the purchase saga state machine.
//
// Forward path:
//
//	STARTED → PAYMENT_PENDING → PAYMENT_CONFIRMED → INVENTORY_COMMITTED
//	        → TICKETS_ISSUED → NOTIFIED → COMPLETED
//
// Compensating paths:
//
//	PAYMENT_PENDING   → PAYMENT_FAILED → ABORTED
//	PAYMENT_CONFIRMED → COMMIT_FAILED  → COMPENSATING_REFUND → ABORTED
//	TICKETS_ISSUED    → NOTIFY_FAILED  → COMPLETED_WITH_WARNING
//
// Notification failure is non-fatal: the order and tickets stand and
// the notification is retried out of band.
type SagaState string

const (
	SagaStarted              SagaState = "STARTED"
	SagaPaymentPending       SagaState = "PAYMENT_PENDING"
	SagaPaymentConfirmed     SagaState = "PAYMENT_CONFIRMED"
	SagaInventoryCommitted   SagaState = "INVENTORY_COMMITTED"
	SagaTicketsIssued        SagaState = "TICKETS_ISSUED"
	SagaNotified             SagaState = "NOTIFIED"
	SagaCompleted            SagaState = "COMPLETED"
	SagaPaymentFailed        SagaState = "PAYMENT_FAILED"
	SagaCommitFailed         SagaState = "COMMIT_FAILED"
	SagaCompensatingRefund   SagaState = "COMPENSATING_REFUND"
	SagaAborted              SagaState = "ABORTED"
	SagaNotifyFailed         SagaState = "NOTIFY_FAILED"
	SagaCompletedWithWarning SagaState = "COMPLETED_WITH_WARNING"
)

// Terminal reports whether the state ends the saga.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaCompleted, SagaCompletedWithWarning, SagaAborted:
		return true
	}
	return false
}

// SagaExecution is the persisted record of one purchase saga run.  It
// is created when the purchase request is accepted, mutated only by
// the coordinator, and retained after completion for auditing and for
// idempotent replay of the stored outcome.
type SagaExecution struct {
	ID             uuid.UUID  // saga_executions.id
	IdempotencyKey string     // saga_executions.idempotency_key (unique)
	ReservationID  uuid.UUID  // saga_executions.reservation_id
	OrderID        *uuid.UUID // saga_executions.order_id (nil until issued)
	State          SagaState  // saga_executions.state
	StepsCompleted []string   // saga_executions.steps_completed (JSON array)
	TransactionID  string     // saga_executions.transaction_id (gateway reference)
	FailureReason  string     // saga_executions.failure_reason
	CreatedAt      time.Time  // saga_executions.created_at
	UpdatedAt      time.Time  // saga_executions.updated_at
}
