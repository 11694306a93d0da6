package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
)

// ReservationRepo provides data access to the reservations table.  The
// status column is the synchronization point between the purchase saga
// and the expiry sweep: every transition goes through UpdateStatusCAS
// so exactly one writer wins any race.  All timestamps are UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// Create inserts a new reservation row.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations
		 (id, ticket_type_id, event_id, buyer_id, quantity, status, hold_token, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID.String(), res.TicketTypeID.String(), res.EventID.String(),
		res.BuyerID.String(), res.Quantity, string(res.Status),
		res.HoldToken, res.ExpiresAt.UTC())
	return err
}

const reservationColumns = `id, ticket_type_id, event_id, buyer_id, quantity,
	status, hold_token, created_at, expires_at`

func scanReservation(scan func(dest ...any) error) (*model.Reservation, error) {
	var res model.Reservation
	var id, ticketTypeID, eventID, buyerID, status string
	err := scan(&id, &ticketTypeID, &eventID, &buyerID, &res.Quantity,
		&status, &res.HoldToken, &res.CreatedAt, &res.ExpiresAt)
	if err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	if res.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad reservation id: %w", err)
	}
	if res.TicketTypeID, err = uuid.Parse(ticketTypeID); err != nil {
		return nil, fmt.Errorf("bad ticket type id: %w", err)
	}
	if res.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("bad event id: %w", err)
	}
	if res.BuyerID, err = uuid.Parse(buyerID); err != nil {
		return nil, fmt.Errorf("bad buyer id: %w", err)
	}
	return &res, nil
}

// GetByID fetches one reservation by id.
func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id.String())
	res, err := scanReservation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// UpdateStatusCAS transitions a reservation from one status to another
// and reports whether this caller won the swap.  A false return with a
// nil error means another writer got there first; the caller should
// re-read the row to find out who.
func (r *ReservationRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND status = ?`,
		string(to), id.String(), string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListExpired returns up to limit reservations that are still HELD past
// their expiry timestamp.  The sweep CASes each one individually, so
// reading a reservation here grants no ownership of it.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = 'HELD' AND expires_at <= ?
		 ORDER BY expires_at LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
