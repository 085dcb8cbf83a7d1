package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
)

// MemStore is an in-memory booking.Store used by service and transport
// tests. Transactions are serialized by a single mutex and rolled back by
// snapshot, which mirrors the real store's atomicity closely enough for the
// concurrency scenarios under test.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	Inventories map[uuid.UUID]domain.EventInventory
	Bookings    map[uuid.UUID]domain.Booking
	Payments    map[uuid.UUID]domain.Payment
	Tickets     map[uuid.UUID]domain.Ticket
	Outbox      []domain.OutboxRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		Inventories: make(map[uuid.UUID]domain.EventInventory),
		Bookings:    make(map[uuid.UUID]domain.Booking),
		Payments:    make(map[uuid.UUID]domain.Payment),
		Tickets:     make(map[uuid.UUID]domain.Ticket),
	}
}

type memSnapshot struct {
	inventories map[uuid.UUID]domain.EventInventory
	bookings    map[uuid.UUID]domain.Booking
	payments    map[uuid.UUID]domain.Payment
	tickets     map[uuid.UUID]domain.Ticket
	outbox      []domain.OutboxRecord
}

func (s *MemStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		inventories: make(map[uuid.UUID]domain.EventInventory, len(s.Inventories)),
		bookings:    make(map[uuid.UUID]domain.Booking, len(s.Bookings)),
		payments:    make(map[uuid.UUID]domain.Payment, len(s.Payments)),
		tickets:     make(map[uuid.UUID]domain.Ticket, len(s.Tickets)),
		outbox:      append([]domain.OutboxRecord(nil), s.Outbox...),
	}
	for k, v := range s.Inventories {
		snap.inventories[k] = v
	}
	for k, v := range s.Bookings {
		snap.bookings[k] = v
	}
	for k, v := range s.Payments {
		snap.payments[k] = v
	}
	for k, v := range s.Tickets {
		snap.tickets[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inventories = snap.inventories
	s.Bookings = snap.bookings
	s.Payments = snap.payments
	s.Tickets = snap.tickets
	s.Outbox = snap.outbox
}

func (s *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemStore) ReserveInventory(ctx context.Context, eventID uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.Inventories[eventID]
	if !ok || inv.AvailableTickets < count {
		return domain.ErrSoldOut
	}
	inv.AvailableTickets -= count
	inv.SoldTickets += count
	s.Inventories[eventID] = inv
	return nil
}

func (s *MemStore) ReleaseInventory(ctx context.Context, eventID uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.Inventories[eventID]
	if !ok || inv.SoldTickets < count {
		return domain.ErrNotFound
	}
	inv.AvailableTickets += count
	inv.SoldTickets -= count
	s.Inventories[eventID] = inv
	return nil
}

func (s *MemStore) GetInventory(ctx context.Context, eventID uuid.UUID) (*domain.EventInventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.Inventories[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &inv, nil
}

func (s *MemStore) CreateBooking(ctx context.Context, b domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bookings[b.ID] = b
	return nil
}

func (s *MemStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (s *MemStore) TransitionBooking(ctx context.Context, id uuid.UUID, to domain.BookingStatus, from ...domain.BookingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Bookings[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if b.Status == f {
			b.Status = to
			s.Bookings[id] = b
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) CreatePayment(ctx context.Context, p domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Payments[p.ID] = p
	return nil
}

func (s *MemStore) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *MemStore) GetPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.Payments {
		if p.CheckoutRequestID == checkoutRequestID && checkoutRequestID != "" {
			p := p
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemStore) GetLatestPayment(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Payment
	for _, p := range s.Payments {
		if p.BookingID != bookingID {
			continue
		}
		p := p
		if latest == nil || p.InitiatedAt.After(latest.InitiatedAt) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (s *MemStore) ResolvePayment(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, outcome domain.PaymentOutcome, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Payments[id]
	if !ok || p.Status != domain.PaymentPending {
		return false, nil
	}
	p.Status = status
	p.Receipt = outcome.Receipt
	p.ResultCode = outcome.ResultCode
	p.ResultDesc = outcome.ResultDesc
	p.CompletedAt = &at
	s.Payments[id] = p
	return true, nil
}

func (s *MemStore) SetPaymentRequestIDs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Payments[id]
	if !ok || p.Status != domain.PaymentPending {
		return false, nil
	}
	p.MerchantRequestID = merchantRequestID
	p.CheckoutRequestID = checkoutRequestID
	s.Payments[id] = p
	return true, nil
}

func (s *MemStore) CancelBookingPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.Payments {
		if p.BookingID == bookingID && (p.Status == domain.PaymentPending || p.Status == domain.PaymentSuccessful) {
			p.Status = domain.PaymentCancelled
			p.CompletedAt = &at
			s.Payments[id] = p
		}
	}
	return nil
}

func (s *MemStore) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []domain.Payment
	for _, p := range s.Payments {
		if p.Status == domain.PaymentPending && !p.InitiatedAt.After(cutoff) && !s.superseded(p) {
			stale = append(stale, p)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].InitiatedAt.Before(stale[j].InitiatedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// superseded reports whether a newer attempt exists for the same booking.
// Callers must hold s.mu.
func (s *MemStore) superseded(p domain.Payment) bool {
	for _, other := range s.Payments {
		if other.BookingID == p.BookingID && other.InitiatedAt.After(p.InitiatedAt) {
			return true
		}
	}
	return false
}

func (s *MemStore) ExpireSupersededPayments(ctx context.Context, cutoff, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for id, p := range s.Payments {
		if p.Status == domain.PaymentPending && !p.InitiatedAt.After(cutoff) && s.superseded(p) {
			p.Status = domain.PaymentFailed
			p.ResultCode = 1
			p.ResultDesc = "superseded by a newer attempt"
			p.CompletedAt = &at
			s.Payments[id] = p
			expired++
		}
	}
	return expired, nil
}

func (s *MemStore) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickets {
		s.Tickets[t.ID] = t
	}
	return nil
}

func (s *MemStore) CountTickets(ctx context.Context, bookingID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.Tickets {
		if t.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (s *MemStore) ListTickets(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tickets []domain.Ticket
	for _, t := range s.Tickets {
		if t.BookingID == bookingID {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Code < tickets[j].Code })
	return tickets, nil
}

func (s *MemStore) CancelTickets(ctx context.Context, bookingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.Tickets {
		if t.BookingID == bookingID && t.Status == domain.TicketActive {
			t.Status = domain.TicketCancelled
			s.Tickets[id] = t
		}
	}
	return nil
}

func (s *MemStore) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.CreatedAt = time.Now()
	s.Outbox = append(s.Outbox, record)
	return nil
}

// OutboxTypes lists the inserted event types in order, for assertions.
func (s *MemStore) OutboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.Outbox))
	for _, rec := range s.Outbox {
		types = append(types, rec.EventType)
	}
	return types
}
