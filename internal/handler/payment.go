package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/service"
)

// PaymentHandler serves the purchase saga entry point and the order
// endpoints.  All routes require an authenticated buyer.
type PaymentHandler struct {
	Saga   *service.Coordinator
	Orders service.OrderStore
}

// NewPaymentHandler constructs a PaymentHandler.  Both dependencies
// must be non-nil.
func NewPaymentHandler(saga *service.Coordinator, orders service.OrderStore) *PaymentHandler {
	if saga == nil || orders == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Saga: saga, Orders: orders}
}

// Purchase handles POST /v1/payments/purchase-tickets.  The
// Idempotency-Key header is mandatory: retried requests with the same
// key replay the stored outcome instead of charging twice.  The
// response status mirrors the saga's terminal state: a 200 with
// status ABORTED means the saga ran and compensated (typically a
// declined payment); client errors before the saga starts surface as
// 4xx.
func (h *PaymentHandler) Purchase(c echo.Context) error {
	buyer, err := buyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	key := c.Request().Header.Get("Idempotency-Key")
	if key == "" {
		key = c.Request().Header.Get("X-Idempotency-Key")
	}
	if key == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key header required"})
	}

	var body struct {
		ReservationID   string `json:"reservation_id"`
		PaymentMethodID string `json:"payment_method_id"`
		HolderName      string `json:"holder_name"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	reservationID, err := uuid.Parse(body.ReservationID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if body.PaymentMethodID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_method_id is required"})
	}

	result, err := h.Saga.Purchase(c.Request().Context(), service.PurchaseRequest{
		IdempotencyKey:  key,
		ReservationID:   reservationID,
		BuyerID:         buyer,
		PaymentMethodID: body.PaymentMethodID,
		HolderName:      body.HolderName,
	})
	if err != nil {
		return writeServiceError(c, err)
	}

	status := http.StatusOK
	if result.Status == string(model.SagaCompleted) || result.Status == string(model.SagaCompletedWithWarning) {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{
		"saga_id":        result.SagaID.String(),
		"order_id":       orderIDString(result.OrderID),
		"order_number":   result.OrderNumber,
		"transaction_id": result.TransactionID,
		"status":         result.Status,
	})
}

func orderIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// GetOrder handles GET /v1/payments/orders/:id.
func (h *PaymentHandler) GetOrder(c echo.Context) error {
	buyer, err := buyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Orders.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeServiceError(c, err)
	}
	if order.BuyerID != buyer {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, echo.Map{"order": orderJSON(order)})
}

// CancelOrder handles POST /v1/payments/orders/:id/cancel.  It runs
// the post-completion compensating flow and returns the updated order.
func (h *PaymentHandler) CancelOrder(c echo.Context) error {
	buyer, err := buyerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.Saga.CancelOrder(c.Request().Context(), id, buyer)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"order": orderJSON(order)})
}

// PurchaseStatus handles GET /v1/payments/sagas/:key.  It lets a
// client poll the saga recorded under its idempotency key, typically
// after receiving a purchase-in-progress conflict.
func (h *PaymentHandler) PurchaseStatus(c echo.Context) error {
	if _, err := buyerID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	key := c.Param("key")
	saga, err := h.Saga.SagaByKey(c.Request().Context(), key)
	if err != nil {
		return writeServiceError(c, err)
	}
	if saga == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown purchase"})
	}
	resp := echo.Map{
		"saga_id":         saga.ID.String(),
		"state":           string(saga.State),
		"steps_completed": saga.StepsCompleted,
		"transaction_id":  saga.TransactionID,
		"failure_reason":  saga.FailureReason,
	}
	if saga.OrderID != nil {
		resp["order_id"] = saga.OrderID.String()
	}
	return c.JSON(http.StatusOK, resp)
}

// orderJSON shapes an order for the API boundary.  Statuses serialize
// to strings only here; internally they stay typed.
func orderJSON(o *model.Order) echo.Map {
	items := make([]echo.Map, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, echo.Map{
			"ticket_type_id":   it.TicketTypeID.String(),
			"quantity":         it.Quantity,
			"unit_price_cents": it.UnitPriceCents,
			"fee_cents":        it.FeeCents,
			"subtotal_cents":   it.SubtotalCents,
			"total_cents":      it.TotalCents,
		})
	}
	tickets := make([]echo.Map, 0, len(o.Tickets))
	for _, tk := range o.Tickets {
		tickets = append(tickets, echo.Map{
			"ticket_id":     tk.ID.String(),
			"ticket_number": tk.TicketNumber,
			"qr_code":       tk.QRCode,
			"holder_name":   tk.HolderName,
			"status":        string(tk.Status),
		})
	}
	return echo.Map{
		"order_id":          o.ID.String(),
		"order_number":      o.OrderNumber,
		"event_id":          o.EventID.String(),
		"reservation_id":    o.ReservationID.String(),
		"subtotal_cents":    o.SubtotalCents,
		"service_fee_cents": o.ServiceFeeCents,
		"tax_cents":         o.TaxCents,
		"total_cents":       o.TotalCents,
		"currency":          o.Currency,
		"payment_status":    string(o.PaymentStatus),
		"transaction_id":    o.TransactionID,
		"created_at":        o.CreatedAt.Format(time.RFC3339),
		"items":             items,
		"tickets":           tickets,
	}
}
