package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
)

// TicketTypeRepo provides access to the ticket_types table, which
// carries the authoritative inventory counters.  Every counter
// mutation is a single guarded UPDATE: the WHERE clause re-states the
// inventory invariant and RowsAffected tells the caller whether the
// swap won.  There is no read-modify-write anywhere, so concurrent
// holds against the same row cannot oversell regardless of isolation
// level.
type TicketTypeRepo struct {
	db *sql.DB
}

// NewTicketTypeRepo returns a TicketTypeRepo bound to the given database.
func NewTicketTypeRepo(db *sql.DB) *TicketTypeRepo { return &TicketTypeRepo{db: db} }

const ticketTypeColumns = `id, event_id, name, price_cents, quantity_available,
	quantity_sold, quantity_reserved, sale_start, sale_end, per_person_limit,
	created_at, updated_at`

func scanTicketType(row *sql.Row) (*model.TicketType, error) {
	var t model.TicketType
	var id, eventID string
	err := row.Scan(&id, &eventID, &t.Name, &t.PriceCents, &t.QuantityAvailable,
		&t.QuantitySold, &t.QuantityReserved, &t.SaleStart, &t.SaleEnd,
		&t.PerPersonLimit, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTicketTypeNotFound
		}
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad ticket type id: %w", err)
	}
	if t.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("bad event id: %w", err)
	}
	return &t, nil
}

// GetByID fetches one ticket type by id.
func (r *TicketTypeRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.TicketType, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketTypeColumns+` FROM ticket_types WHERE id = ?`, id.String())
	return scanTicketType(row)
}

// Create inserts a new ticket type.  Used by admin provisioning and tests.
func (r *TicketTypeRepo) Create(ctx context.Context, t *model.TicketType) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ticket_types
		 (id, event_id, name, price_cents, quantity_available, quantity_sold,
		  quantity_reserved, sale_start, sale_end, per_person_limit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.EventID.String(), t.Name, t.PriceCents,
		t.QuantityAvailable, t.QuantitySold, t.QuantityReserved,
		t.SaleStart.UTC(), t.SaleEnd.UTC(), t.PerPersonLimit)
	return err
}

// HoldUnits atomically moves qty units from available to reserved.
// The guard `quantity_available - quantity_sold - quantity_reserved >= qty`
// is evaluated inside the UPDATE, so for N concurrent holds whose sum
// exceeds the remaining stock, exactly enough succeed to exhaust it
// and the rest return ErrInsufficientInventory.
func (r *TicketTypeRepo) HoldUnits(ctx context.Context, id uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_types
		 SET quantity_reserved = quantity_reserved + ?
		 WHERE id = ? AND quantity_available - quantity_sold - quantity_reserved >= ?`,
		qty, id.String(), qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientInventory
	}
	return nil
}

// CommitUnits converts qty reserved units into sold units.  The guard
// refuses to commit units that were never reserved or that would push
// quantity_sold past quantity_available; a zero row count here means a
// lost compensation or a double commit and surfaces as ErrConflict.
func (r *TicketTypeRepo) CommitUnits(ctx context.Context, id uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_types
		 SET quantity_sold = quantity_sold + ?, quantity_reserved = quantity_reserved - ?
		 WHERE id = ? AND quantity_reserved >= ? AND quantity_sold + ? <= quantity_available`,
		qty, qty, id.String(), qty, qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ReleaseUnits returns qty reserved units to the sellable pool without
// touching the sold counter.
func (r *TicketTypeRepo) ReleaseUnits(ctx context.Context, id uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_types
		 SET quantity_reserved = quantity_reserved - ?
		 WHERE id = ? AND quantity_reserved >= ?`,
		qty, id.String(), qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// UncommitUnits reverses a committed sale, returning qty sold units to
// the sellable pool.  Only the post-completion cancellation flow calls
// this.
func (r *TicketTypeRepo) UncommitUnits(ctx context.Context, id uuid.UUID, qty int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ticket_types
		 SET quantity_sold = quantity_sold - ?
		 WHERE id = ? AND quantity_sold >= ?`,
		qty, id.String(), qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// AvailabilityByEvent returns the derived remaining count for every
// ticket type of an event.  The result is a read-only view; it may be
// stale by the time the client acts on it, which is why reserve is the
// only authoritative check.
func (r *TicketTypeRepo) AvailabilityByEvent(ctx context.Context, eventID uuid.UUID) ([]model.TicketTypeAvailability, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price_cents,
		        quantity_available - quantity_sold - quantity_reserved
		 FROM ticket_types WHERE event_id = ? ORDER BY name`,
		eventID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketTypeAvailability
	for rows.Next() {
		var a model.TicketTypeAvailability
		var id string
		if err := rows.Scan(&id, &a.Name, &a.PriceCents, &a.Available); err != nil {
			return nil, err
		}
		if a.TicketTypeID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad ticket type id: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BuyerUnits sums the units a buyer already has against a ticket type:
// live holds plus confirmed reservations.  The per-person limit check
// counts both so a buyer cannot dodge the cap by splitting purchases.
func (r *TicketTypeRepo) BuyerUnits(ctx context.Context, ticketTypeID, buyerID uuid.UUID) (int, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM reservations
		 WHERE ticket_type_id = ? AND buyer_id = ? AND status IN ('HELD', 'CONFIRMED')`,
		ticketTypeID.String(), buyerID.String()).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}
