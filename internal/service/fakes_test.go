package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventbooking/ticketing/internal/model"
	"github.com/eventbooking/ticketing/internal/queue"
	"github.com/eventbooking/ticketing/internal/repository"
)

// fakeTypeStore is an in-memory TicketTypeStore that enforces the same
// counter guards as the MySQL repository, under a mutex so concurrent
// tests exercise real contention.
type fakeTypeStore struct {
	mu    sync.Mutex
	types map[uuid.UUID]*model.TicketType
	owned map[string]int // "<typeID>|<buyerID>" -> units already held or confirmed
}

func newFakeTypeStore(tts ...*model.TicketType) *fakeTypeStore {
	s := &fakeTypeStore{
		types: make(map[uuid.UUID]*model.TicketType),
		owned: make(map[string]int),
	}
	for _, tt := range tts {
		cp := *tt
		s.types[tt.ID] = &cp
	}
	return s
}

func (s *fakeTypeStore) GetByID(_ context.Context, id uuid.UUID) (*model.TicketType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return nil, repository.ErrTicketTypeNotFound
	}
	cp := *tt
	return &cp, nil
}

func (s *fakeTypeStore) HoldUnits(_ context.Context, id uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return repository.ErrTicketTypeNotFound
	}
	if tt.QuantityAvailable-tt.QuantitySold-tt.QuantityReserved < qty {
		return repository.ErrInsufficientInventory
	}
	tt.QuantityReserved += qty
	return nil
}

func (s *fakeTypeStore) CommitUnits(_ context.Context, id uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return repository.ErrTicketTypeNotFound
	}
	if tt.QuantityReserved < qty || tt.QuantitySold+qty > tt.QuantityAvailable {
		return repository.ErrConflict
	}
	tt.QuantityReserved -= qty
	tt.QuantitySold += qty
	return nil
}

func (s *fakeTypeStore) ReleaseUnits(_ context.Context, id uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return repository.ErrTicketTypeNotFound
	}
	if tt.QuantityReserved < qty {
		return repository.ErrConflict
	}
	tt.QuantityReserved -= qty
	return nil
}

func (s *fakeTypeStore) UncommitUnits(_ context.Context, id uuid.UUID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tt, ok := s.types[id]
	if !ok {
		return repository.ErrTicketTypeNotFound
	}
	if tt.QuantitySold < qty {
		return repository.ErrConflict
	}
	tt.QuantitySold -= qty
	return nil
}

func (s *fakeTypeStore) AvailabilityByEvent(_ context.Context, eventID uuid.UUID) ([]model.TicketTypeAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TicketTypeAvailability
	for _, tt := range s.types {
		if tt.EventID != eventID {
			continue
		}
		out = append(out, model.TicketTypeAvailability{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			PriceCents:   tt.PriceCents,
			Available:    tt.Remaining(),
		})
	}
	return out, nil
}

func (s *fakeTypeStore) BuyerUnits(_ context.Context, ticketTypeID, buyerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned[ticketTypeID.String()+"|"+buyerID.String()], nil
}

func (s *fakeTypeStore) setBuyerUnits(ticketTypeID, buyerID uuid.UUID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned[ticketTypeID.String()+"|"+buyerID.String()] = n
}

func (s *fakeTypeStore) snapshot(id uuid.UUID) model.TicketType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.types[id]
}

// fakeResStore is an in-memory ReservationStore with CAS semantics.
type fakeResStore struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.Reservation
}

func newFakeResStore() *fakeResStore {
	return &fakeResStore{rows: make(map[uuid.UUID]*model.Reservation)}
}

func (s *fakeResStore) Create(_ context.Context, res *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *res
	s.rows[res.ID] = &cp
	return nil
}

func (s *fakeResStore) GetByID(_ context.Context, id uuid.UUID) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeResStore) UpdateStatusCAS(_ context.Context, id uuid.UUID, from, to model.ReservationStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return false, repository.ErrReservationNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (s *fakeResStore) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.rows {
		if r.Status == model.ReservationHeld && now.After(r.ExpiresAt) {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeResStore) status(id uuid.UUID) model.ReservationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

// fakeOrderStore is an in-memory OrderStore.  failCreate forces
// issuance failure to drive the compensation path.
type fakeOrderStore struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*model.Order
	failCreate bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{rows: make(map[uuid.UUID]*model.Order)}
}

func (s *fakeOrderStore) CreateWithTickets(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return fmt.Errorf("database gone away")
	}
	cp := *o
	s.rows[o.ID] = &cp
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeOrderStore) Cancel(_ context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[orderID]
	if !ok {
		return false, repository.ErrOrderNotFound
	}
	if o.PaymentStatus != model.PaymentCompleted {
		return false, nil
	}
	o.PaymentStatus = model.PaymentCancelled
	for i := range o.Tickets {
		o.Tickets[i].Status = model.TicketCancelled
	}
	return true, nil
}

// fakeSagaStore records every state the coordinator persists so tests
// can assert on the transition sequence.
type fakeSagaStore struct {
	mu     sync.Mutex
	byKey  map[string]*model.SagaExecution
	states []model.SagaState
}

func newFakeSagaStore() *fakeSagaStore {
	return &fakeSagaStore{byKey: make(map[string]*model.SagaExecution)}
}

func (s *fakeSagaStore) Create(_ context.Context, saga *model.SagaExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *saga
	s.byKey[saga.IdempotencyKey] = &cp
	s.states = append(s.states, saga.State)
	return nil
}

func (s *fakeSagaStore) Update(_ context.Context, saga *model.SagaExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *saga
	s.byKey[saga.IdempotencyKey] = &cp
	s.states = append(s.states, saga.State)
	return nil
}

func (s *fakeSagaStore) GetByKey(_ context.Context, key string) (*model.SagaExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saga, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *saga
	return &cp, nil
}

func (s *fakeSagaStore) seen(state model.SagaState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st == state {
			return true
		}
	}
	return false
}

// fakeGateway is a scripted PaymentGateway.
type fakeGateway struct {
	mu         sync.Mutex
	decline    bool
	failFirstN int
	failRefund bool
	charges    int
	refunds    []string
}

var errGatewayDown = errors.New("gateway timeout")

func (g *fakeGateway) Charge(_ context.Context, _ string, amountCents int64, currency string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	if g.decline {
		return nil, ErrPaymentDeclined
	}
	if g.charges <= g.failFirstN {
		return nil, errGatewayDown
	}
	return &Charge{
		TransactionID: fmt.Sprintf("tx-%d", g.charges),
		AmountCents:   amountCents,
		Currency:      currency,
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, transactionID string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRefund {
		return errGatewayDown
	}
	g.refunds = append(g.refunds, transactionID)
	return nil
}

func (g *fakeGateway) chargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

func (g *fakeGateway) refunded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.refunds...)
}

// fakeNotifier records published events; fail makes every publish error.
type fakeNotifier struct {
	mu     sync.Mutex
	fail   bool
	events []queue.OrderCompletedEvent
}

func (n *fakeNotifier) PublishOrderCompleted(_ context.Context, ev queue.OrderCompletedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) published() []queue.OrderCompletedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]queue.OrderCompletedEvent(nil), n.events...)
}
