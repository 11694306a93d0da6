package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
)

// SagaRepo persists saga executions.  Rows are written when a purchase
// is accepted and updated after every state transition, then retained
// for audit.  StepsCompleted is stored as a JSON array in a TEXT
// column.
type SagaRepo struct {
	db *sql.DB
}

// NewSagaRepo returns a SagaRepo bound to the given database.
func NewSagaRepo(db *sql.DB) *SagaRepo { return &SagaRepo{db: db} }

// Create inserts a new saga execution row.
func (r *SagaRepo) Create(ctx context.Context, s *model.SagaExecution) error {
	steps, err := json.Marshal(s.StepsCompleted)
	if err != nil {
		return err
	}
	var orderID any
	if s.OrderID != nil {
		orderID = s.OrderID.String()
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO saga_executions
		 (id, idempotency_key, reservation_id, order_id, state, steps_completed,
		  transaction_id, failure_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.IdempotencyKey, s.ReservationID.String(), orderID,
		string(s.State), string(steps), s.TransactionID, s.FailureReason)
	return err
}

// Update rewrites the mutable fields of a saga execution after a state
// transition.
func (r *SagaRepo) Update(ctx context.Context, s *model.SagaExecution) error {
	steps, err := json.Marshal(s.StepsCompleted)
	if err != nil {
		return err
	}
	var orderID any
	if s.OrderID != nil {
		orderID = s.OrderID.String()
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE saga_executions
		 SET order_id = ?, state = ?, steps_completed = ?, transaction_id = ?,
		     failure_reason = ?
		 WHERE id = ?`,
		orderID, string(s.State), string(steps), s.TransactionID,
		s.FailureReason, s.ID.String())
	return err
}

// GetByKey fetches the saga execution recorded under an idempotency
// key, or nil when none exists.
func (r *SagaRepo) GetByKey(ctx context.Context, key string) (*model.SagaExecution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, idempotency_key, reservation_id, order_id, state,
		        steps_completed, transaction_id, failure_reason, created_at, updated_at
		 FROM saga_executions WHERE idempotency_key = ?`, key)

	var s model.SagaExecution
	var id, reservationID, state, steps string
	var orderID sql.NullString
	err := row.Scan(&id, &s.IdempotencyKey, &reservationID, &orderID, &state,
		&steps, &s.TransactionID, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.State = model.SagaState(state)
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad saga id: %w", err)
	}
	if s.ReservationID, err = uuid.Parse(reservationID); err != nil {
		return nil, fmt.Errorf("bad reservation id: %w", err)
	}
	if orderID.Valid {
		oid, err := uuid.Parse(orderID.String)
		if err != nil {
			return nil, fmt.Errorf("bad order id: %w", err)
		}
		s.OrderID = &oid
	}
	if err := json.Unmarshal([]byte(steps), &s.StepsCompleted); err != nil {
		return nil, fmt.Errorf("bad steps payload: %w", err)
	}
	return &s, nil
}
