package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
)

// OrderRepo provides data access to the orders, order_items and
// tickets tables.  An order is only ever written together with its
// items and tickets inside one transaction, which makes an order
// whose ticket count differs from its item quantities structurally
// impossible: either the whole set commits or none of it does.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateWithTickets persists an order, its items and its tickets in a
// single transaction.
func (r *OrderRepo) CreateWithTickets(ctx context.Context, o *model.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders
		 (id, order_number, buyer_id, event_id, reservation_id, subtotal_cents,
		  service_fee_cents, tax_cents, total_cents, currency, payment_status, transaction_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.OrderNumber, o.BuyerID.String(), o.EventID.String(),
		o.ReservationID.String(), o.SubtotalCents, o.ServiceFeeCents,
		o.TaxCents, o.TotalCents, o.Currency, string(o.PaymentStatus), o.TransactionID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items
			 (id, order_id, ticket_type_id, quantity, unit_price_cents,
			  fee_cents, subtotal_cents, total_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID.String(), o.ID.String(), it.TicketTypeID.String(), it.Quantity,
			it.UnitPriceCents, it.FeeCents, it.SubtotalCents, it.TotalCents)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	for _, tk := range o.Tickets {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tickets
			 (id, order_id, ticket_type_id, ticket_number, qr_code, holder_name, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tk.ID.String(), o.ID.String(), tk.TicketTypeID.String(),
			tk.TicketNumber, tk.QRCode, tk.HolderName, string(tk.Status))
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID fetches an order with its items and tickets.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_number, buyer_id, event_id, reservation_id, subtotal_cents,
		        service_fee_cents, tax_cents, total_cents, currency, payment_status,
		        transaction_id, created_at, updated_at
		 FROM orders WHERE id = ?`, id.String())

	var o model.Order
	var oid, buyerID, eventID, reservationID, status string
	err := row.Scan(&oid, &o.OrderNumber, &buyerID, &eventID, &reservationID,
		&o.SubtotalCents, &o.ServiceFeeCents, &o.TaxCents, &o.TotalCents,
		&o.Currency, &status, &o.TransactionID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	o.PaymentStatus = model.PaymentStatus(status)
	if o.ID, err = uuid.Parse(oid); err != nil {
		return nil, fmt.Errorf("bad order id: %w", err)
	}
	if o.BuyerID, err = uuid.Parse(buyerID); err != nil {
		return nil, fmt.Errorf("bad buyer id: %w", err)
	}
	if o.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("bad event id: %w", err)
	}
	if o.ReservationID, err = uuid.Parse(reservationID); err != nil {
		return nil, fmt.Errorf("bad reservation id: %w", err)
	}

	if o.Items, err = r.itemsByOrder(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Tickets, err = r.ticketsByOrder(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) itemsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_type_id, quantity, unit_price_cents, fee_cents,
		        subtotal_cents, total_cents
		 FROM order_items WHERE order_id = ?`, orderID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		var id, ticketTypeID string
		if err := rows.Scan(&id, &ticketTypeID, &it.Quantity, &it.UnitPriceCents,
			&it.FeeCents, &it.SubtotalCents, &it.TotalCents); err != nil {
			return nil, err
		}
		if it.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad order item id: %w", err)
		}
		if it.TicketTypeID, err = uuid.Parse(ticketTypeID); err != nil {
			return nil, fmt.Errorf("bad ticket type id: %w", err)
		}
		it.OrderID = orderID
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *OrderRepo) ticketsByOrder(ctx context.Context, orderID uuid.UUID) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, ticket_type_id, ticket_number, qr_code, holder_name, status, created_at
		 FROM tickets WHERE order_id = ?`, orderID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []model.Ticket
	for rows.Next() {
		var tk model.Ticket
		var id, ticketTypeID, status string
		if err := rows.Scan(&id, &ticketTypeID, &tk.TicketNumber, &tk.QRCode,
			&tk.HolderName, &status, &tk.CreatedAt); err != nil {
			return nil, err
		}
		if tk.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad ticket id: %w", err)
		}
		if tk.TicketTypeID, err = uuid.Parse(ticketTypeID); err != nil {
			return nil, fmt.Errorf("bad ticket type id: %w", err)
		}
		tk.Status = model.TicketStatus(status)
		tk.OrderID = orderID
		tickets = append(tickets, tk)
	}
	return tickets, rows.Err()
}

// Cancel marks a COMPLETED order CANCELLED and its tickets CANCELLED in
// one transaction.  It reports whether this caller performed the
// transition; false means the order was not in a cancellable state.
func (r *OrderRepo) Cancel(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = 'CANCELLED'
		 WHERE id = ? AND payment_status = 'COMPLETED'`, orderID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE tickets SET status = 'CANCELLED' WHERE order_id = ?`, orderID.String())
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}
