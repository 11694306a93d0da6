package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/service"
)

// TicketHandler serves the reservation and availability endpoints.
// JWT authentication runs before every method except availability,
// which is public and read-only.
type TicketHandler struct {
	Reservations *service.ReservationManager
	Ledger       *service.Ledger
}

// NewTicketHandler constructs a TicketHandler.  Both dependencies must
// be non-nil.
func NewTicketHandler(reservations *service.ReservationManager, ledger *service.Ledger) *TicketHandler {
	if reservations == nil || ledger == nil {
		panic("nil dependency passed to NewTicketHandler")
	}
	return &TicketHandler{Reservations: reservations, Ledger: ledger}
}

// Reserve handles POST /v1/tickets/reserve.  It places an atomic hold
// on inventory and returns the reservation id with its expiry.  The
// hold is the only authoritative availability check; a 409 here means
// the units genuinely are not there (or the buyer hit the sale window
// or per-person limit), and no partial hold remains.
func (h *TicketHandler) Reserve(c echo.Context) error {
	buyer, err := buyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		TicketTypeID string `json:"ticket_type_id"`
		Quantity     int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ticketTypeID, err := uuid.Parse(body.TicketTypeID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket type id"})
	}

	res, err := h.Reservations.Reserve(c.Request().Context(), buyer, ticketTypeID, body.Quantity)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID.String(),
		"hold_token":     res.HoldToken,
		"quantity":       res.Quantity,
		"expires_at":     res.ExpiresAt.Format(time.RFC3339),
	})
}

// Release handles POST /v1/tickets/reservations/:id/release.  It lets
// a buyer give up a hold early instead of waiting for the TTL sweep.
func (h *TicketHandler) Release(c echo.Context) error {
	buyer, err := buyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx := c.Request().Context()
	res, err := h.Reservations.Get(ctx, id)
	if err != nil {
		return writeServiceError(c, err)
	}
	if res.BuyerID != buyer {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Reservations.Release(ctx, id); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Availability handles GET /v1/tickets/availability/:eventId.  The
// response is a derived, read-only view; clients must not treat it as
// a promise that a subsequent reserve will succeed.
func (h *TicketHandler) Availability(c echo.Context) error {
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
	}
	items, err := h.Ledger.Availability(c.Request().Context(), eventID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if items == nil {
		items = []model.TicketTypeAvailability{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
