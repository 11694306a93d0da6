package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/repository"
)

// sagaFixture wires a Coordinator over in-memory stores, a scripted
// gateway and a mocked Redis for the idempotency layer.
type sagaFixture struct {
	tt       *model.TicketType
	types    *fakeTypeStore
	resStore *fakeResStore
	orders   *fakeOrderStore
	sagas    *fakeSagaStore
	gateway  *fakeGateway
	notifier *fakeNotifier
	manager  *ReservationManager
	coord    *Coordinator
	mock     redismock.ClientMock
}

func newSagaFixture(capacity int) *sagaFixture {
	f := &sagaFixture{
		tt:       openTicketType(capacity),
		orders:   newFakeOrderStore(),
		sagas:    newFakeSagaStore(),
		gateway:  &fakeGateway{},
		notifier: &fakeNotifier{},
	}
	f.types = newFakeTypeStore(f.tt)
	f.resStore = newFakeResStore()
	ledger := NewLedger(f.types, nil, zap.NewNop())
	f.manager = NewReservationManager(f.resStore, ledger, 10*time.Minute, zap.NewNop())

	rdb, mock := redismock.NewClientMock()
	f.mock = mock
	idem := NewIdempotencyStore(rdb, time.Hour)
	issuer := NewIssuer(f.orders, "qr-secret")
	f.coord = NewCoordinator(f.manager, ledger, issuer, f.orders,
		f.gateway, f.notifier, f.sagas, idem, zap.NewNop())
	return f
}

// reserve places a hold the way a client would before purchasing.
func (f *sagaFixture) reserve(t *testing.T, buyer uuid.UUID, qty int) *model.Reservation {
	t.Helper()
	res, err := f.manager.Reserve(context.Background(), buyer, f.tt.ID, qty)
	require.NoError(t, err)
	return res
}

func (f *sagaFixture) expectFreshRun(key string) {
	f.mock.ExpectSetNX("idem:"+key, inProgressMarker, time.Hour).SetVal(true)
	// The stored outcome contains generated ids; accept any SET payload.
	f.mock.CustomMatch(func(expected, actual []interface{}) error {
		return nil
	}).ExpectSet("idem:"+key, "", time.Hour).SetVal("OK")
}

func (f *sagaFixture) expectAbandonedRun(key string) {
	f.mock.ExpectSetNX("idem:"+key, inProgressMarker, time.Hour).SetVal(true)
	f.mock.ExpectDel("idem:" + key).SetVal(1)
}

func TestPurchaseHappyPath(t *testing.T) {
	f := newSagaFixture(10)
	buyer := uuid.New()
	res := f.reserve(t, buyer, 2)
	f.expectFreshRun("k1")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey:  "k1",
		ReservationID:   res.ID,
		BuyerID:         buyer,
		PaymentMethodID: "pm-1",
		HolderName:      "Dana Reyes",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaCompleted), result.Status)
	assert.NotEmpty(t, result.OrderNumber)
	assert.NotEmpty(t, result.TransactionID)

	order, err := f.orders.GetByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Len(t, order.Tickets, 2)
	// 2 x 5000 plus 10% fee and 8% tax
	assert.Equal(t, int64(11800), order.TotalCents)

	snap := f.types.snapshot(f.tt.ID)
	assert.Equal(t, 2, snap.QuantitySold)
	assert.Equal(t, 0, snap.QuantityReserved)
	assert.Equal(t, model.ReservationConfirmed, f.resStore.status(res.ID))

	events := f.notifier.published()
	require.Len(t, events, 1)
	assert.Len(t, events[0].TicketNumbers, 2)
	assert.Equal(t, order.OrderNumber, events[0].OrderNumber)

	for _, state := range []model.SagaState{
		model.SagaPaymentPending, model.SagaPaymentConfirmed,
		model.SagaInventoryCommitted, model.SagaTicketsIssued,
		model.SagaNotified, model.SagaCompleted,
	} {
		assert.True(t, f.sagas.seen(state), "missing state %s", state)
	}
	assert.Equal(t, 1, f.gateway.chargeCount())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseDeclinedCompensates(t *testing.T) {
	f := newSagaFixture(10)
	f.gateway.decline = true
	buyer := uuid.New()
	res := f.reserve(t, buyer, 3)
	f.expectFreshRun("k2")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k2", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaAborted), result.Status)
	assert.Equal(t, uuid.Nil, result.OrderID)

	// Units back in the pool, reservation released, money never moved.
	snap := f.types.snapshot(f.tt.ID)
	assert.Equal(t, 0, snap.QuantitySold)
	assert.Equal(t, 0, snap.QuantityReserved)
	assert.Equal(t, model.ReservationReleased, f.resStore.status(res.ID))
	assert.Empty(t, f.gateway.refunded())
	assert.True(t, f.sagas.seen(model.SagaPaymentFailed))

	saga, err := f.sagas.GetByKey(context.Background(), "k2")
	require.NoError(t, err)
	assert.Equal(t, "payment declined", saga.FailureReason)

	// A decline is final; no retries.
	assert.Equal(t, 1, f.gateway.chargeCount())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseRetriesTransientChargeFailures(t *testing.T) {
	f := newSagaFixture(10)
	f.gateway.failFirstN = 2
	buyer := uuid.New()
	res := f.reserve(t, buyer, 1)
	f.expectFreshRun("k3")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k3", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaCompleted), result.Status)
	assert.Equal(t, 3, f.gateway.chargeCount())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseChargeRetriesExhaustedAborts(t *testing.T) {
	f := newSagaFixture(10)
	f.gateway.failFirstN = paymentAttempts
	buyer := uuid.New()
	res := f.reserve(t, buyer, 1)
	f.expectFreshRun("k4")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k4", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaAborted), result.Status)
	assert.Equal(t, paymentAttempts, f.gateway.chargeCount())
	assert.Equal(t, model.ReservationReleased, f.resStore.status(res.ID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseIssuanceFailureRefundsAndRestocks(t *testing.T) {
	f := newSagaFixture(10)
	f.orders.failCreate = true
	buyer := uuid.New()
	res := f.reserve(t, buyer, 2)
	f.expectFreshRun("k5")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k5", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaAborted), result.Status)

	// The charge went through before issuance failed, so it must come back.
	require.Len(t, f.gateway.refunded(), 1)

	snap := f.types.snapshot(f.tt.ID)
	assert.Equal(t, 0, snap.QuantitySold)
	assert.Equal(t, 0, snap.QuantityReserved)
	assert.Equal(t, model.ReservationReleased, f.resStore.status(res.ID))
	assert.True(t, f.sagas.seen(model.SagaCompensatingRefund))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// The uncommit during issuance compensation already returned the
// units; the reservation abort must not release them again, or the
// second release is paid for with another buyer's live hold.
func TestPurchaseIssuanceFailurePreservesOtherHolds(t *testing.T) {
	f := newSagaFixture(10)
	f.orders.failCreate = true

	other := uuid.New()
	otherRes := f.reserve(t, other, 3)

	buyer := uuid.New()
	res := f.reserve(t, buyer, 2)
	f.expectFreshRun("k13")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k13", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	require.Equal(t, string(model.SagaAborted), result.Status)

	snap := f.types.snapshot(f.tt.ID)
	assert.Equal(t, 0, snap.QuantitySold)
	assert.Equal(t, 3, snap.QuantityReserved, "bystander hold must survive compensation")
	assert.Equal(t, 7, snap.Remaining())
	assert.Equal(t, model.ReservationHeld, f.resStore.status(otherRes.ID))
	assert.Equal(t, model.ReservationReleased, f.resStore.status(res.ID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseNotifyFailureCompletesWithWarning(t *testing.T) {
	f := newSagaFixture(10)
	f.notifier.fail = true
	buyer := uuid.New()
	res := f.reserve(t, buyer, 1)
	f.expectFreshRun("k6")

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k6", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.SagaCompletedWithWarning), result.Status)

	// Order and tickets stand despite the failed publish.
	order, err := f.orders.GetByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Len(t, order.Tickets, 1)
	assert.Equal(t, 1, f.types.snapshot(f.tt.ID).QuantitySold)
	assert.True(t, f.sagas.seen(model.SagaNotifyFailed))
	assert.Empty(t, f.gateway.refunded())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseReplaysStoredOutcome(t *testing.T) {
	f := newSagaFixture(10)
	sagaID := uuid.New()
	f.mock.ExpectSetNX("idem:k7", inProgressMarker, time.Hour).SetVal(false)
	f.mock.ExpectGet("idem:k7").SetVal(
		`{"saga_id":"` + sagaID.String() + `","order_id":"00000000-0000-0000-0000-000000000000","order_number":"","transaction_id":"","status":"ABORTED"}`)

	result, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k7", ReservationID: uuid.New(), BuyerID: uuid.New(), PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)
	assert.Equal(t, sagaID, result.SagaID)
	assert.Equal(t, string(model.SagaAborted), result.Status)

	// Nothing ran again.
	assert.Equal(t, 0, f.gateway.chargeCount())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseConcurrentDuplicateRejected(t *testing.T) {
	f := newSagaFixture(10)
	f.mock.ExpectSetNX("idem:k8", inProgressMarker, time.Hour).SetVal(false)
	f.mock.ExpectGet("idem:k8").SetVal(inProgressMarker)

	_, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k8", ReservationID: uuid.New(), BuyerID: uuid.New(), PaymentMethodID: "pm-1",
	})
	assert.ErrorIs(t, err, ErrPurchaseInProgress)
	assert.Equal(t, 0, f.gateway.chargeCount())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseForeignReservationForbidden(t *testing.T) {
	f := newSagaFixture(10)
	owner := uuid.New()
	res := f.reserve(t, owner, 1)
	f.expectAbandonedRun("k9")

	_, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k9", ReservationID: res.ID, BuyerID: uuid.New(), PaymentMethodID: "pm-1",
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, model.ReservationHeld, f.resStore.status(res.ID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseUnknownReservation(t *testing.T) {
	f := newSagaFixture(10)
	f.expectAbandonedRun("k10")

	_, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k10", ReservationID: uuid.New(), BuyerID: uuid.New(), PaymentMethodID: "pm-1",
	})
	assert.ErrorIs(t, err, repository.ErrReservationNotFound)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPurchaseRequiresHeldReservation(t *testing.T) {
	f := newSagaFixture(10)
	buyer := uuid.New()
	res := f.reserve(t, buyer, 1)
	_, err := f.manager.Confirm(context.Background(), res.ID)
	require.NoError(t, err)
	f.expectAbandonedRun("k11")

	_, err = f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k11", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// seedCompletedOrder installs a COMPLETED order with sold inventory, as
// if a saga finished earlier.
func (f *sagaFixture) seedCompletedOrder(t *testing.T, buyer uuid.UUID, qty int) *model.Order {
	t.Helper()
	ctx := context.Background()
	res, err := f.manager.Reserve(ctx, buyer, f.tt.ID, qty)
	require.NoError(t, err)
	_, err = f.manager.Confirm(ctx, res.ID)
	require.NoError(t, err)
	require.NoError(t, f.types.CommitUnits(ctx, f.tt.ID, qty))

	orderID := uuid.New()
	order := &model.Order{
		ID:            orderID,
		OrderNumber:   "ORD-1-0001",
		BuyerID:       buyer,
		EventID:       f.tt.EventID,
		TotalCents:    11800,
		Currency:      "USD",
		PaymentStatus: model.PaymentCompleted,
		TransactionID: "tx-seeded",
		Items: []model.OrderItem{{
			ID: uuid.New(), OrderID: orderID, TicketTypeID: f.tt.ID, Quantity: qty,
		}},
		Tickets: []model.Ticket{{
			ID: uuid.New(), OrderID: orderID, TicketTypeID: f.tt.ID,
			TicketNumber: "TKT-1-1-0001", Status: model.TicketActive,
		}},
	}
	require.NoError(t, f.orders.CreateWithTickets(ctx, order))
	return order
}

func TestCancelOrderRefundsAndRestocks(t *testing.T) {
	f := newSagaFixture(10)
	buyer := uuid.New()
	order := f.seedCompletedOrder(t, buyer, 2)
	require.Equal(t, 2, f.types.snapshot(f.tt.ID).QuantitySold)

	got, err := f.coord.CancelOrder(context.Background(), order.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCancelled, got.PaymentStatus)
	for _, tk := range got.Tickets {
		assert.Equal(t, model.TicketCancelled, tk.Status)
	}
	assert.Equal(t, []string{"tx-seeded"}, f.gateway.refunded())
	assert.Equal(t, 0, f.types.snapshot(f.tt.ID).QuantitySold)

	// Cancelling again finds the order no longer COMPLETED.
	_, err = f.coord.CancelOrder(context.Background(), order.ID, buyer)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, f.gateway.refunded(), 1)
}

func TestCancelOrderForeignBuyerForbidden(t *testing.T) {
	f := newSagaFixture(10)
	order := f.seedCompletedOrder(t, uuid.New(), 1)

	_, err := f.coord.CancelOrder(context.Background(), order.ID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, f.gateway.refunded())
}

func TestSagaByKey(t *testing.T) {
	f := newSagaFixture(10)
	buyer := uuid.New()
	res := f.reserve(t, buyer, 1)
	f.expectFreshRun("k12")

	_, err := f.coord.Purchase(context.Background(), PurchaseRequest{
		IdempotencyKey: "k12", ReservationID: res.ID, BuyerID: buyer, PaymentMethodID: "pm-1",
	})
	require.NoError(t, err)

	saga, err := f.coord.SagaByKey(context.Background(), "k12")
	require.NoError(t, err)
	require.NotNil(t, saga)
	assert.Equal(t, model.SagaCompleted, saga.State)
	assert.Contains(t, saga.StepsCompleted, "payment_charged")
	assert.Contains(t, saga.StepsCompleted, "inventory_committed")
	assert.Contains(t, saga.StepsCompleted, "tickets_issued")

	missing, err := f.coord.SagaByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
