package handler // package handler contains the HTTP handlers for the reservation and purchase API

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eventbooking/ticketing/internal/repository"
	"github.com/eventbooking/ticketing/internal/service"
)

// buyerID extracts the authenticated buyer from the context.  JWTAuth
// stores it as a uuid.UUID; anything else means the route was wired
// without the middleware.
func buyerID(c echo.Context) (uuid.UUID, error) {
	id, ok := c.Get("buyer_id").(uuid.UUID)
	if !ok {
		return uuid.Nil, errors.New("no buyer in context")
	}
	return id, nil
}

// writeServiceError maps engine errors onto HTTP responses.  Client
// errors never carry internal detail beyond the category; unexpected
// errors collapse to a generic 500.
func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrTicketTypeNotFound),
		errors.Is(err, repository.ErrReservationNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrInsufficientInventory):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient inventory"})
	case errors.Is(err, service.ErrSaleClosed):
		return c.JSON(http.StatusConflict, echo.Map{"error": "sale closed"})
	case errors.Is(err, service.ErrLimitExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "per-person limit exceeded"})
	case errors.Is(err, service.ErrPurchaseInProgress):
		return c.JSON(http.StatusConflict, echo.Map{"error": "purchase already in progress"})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "invalid state"})
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be positive"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrPaymentDeclined):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment declined"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
