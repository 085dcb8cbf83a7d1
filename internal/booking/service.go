package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/clock"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/gateway"
	"github.com/tumaini/tikiti/internal/observability"
)

// Store is the transactional persistence surface the engine runs on. The
// relational implementation lives in internal/adapters/crdb; tests use an
// in-memory fake.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	ReserveInventory(ctx context.Context, eventID uuid.UUID, count int) error
	ReleaseInventory(ctx context.Context, eventID uuid.UUID, count int) error
	GetInventory(ctx context.Context, eventID uuid.UUID) (*domain.EventInventory, error)

	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	TransitionBooking(ctx context.Context, id uuid.UUID, to domain.BookingStatus, from ...domain.BookingStatus) (bool, error)

	CreatePayment(ctx context.Context, p domain.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentByCheckoutID(ctx context.Context, checkoutRequestID string) (*domain.Payment, error)
	GetLatestPayment(ctx context.Context, bookingID uuid.UUID) (*domain.Payment, error)
	ResolvePayment(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, outcome domain.PaymentOutcome, at time.Time) (bool, error)
	SetPaymentRequestIDs(ctx context.Context, id uuid.UUID, merchantRequestID, checkoutRequestID string) (bool, error)
	CancelBookingPayments(ctx context.Context, bookingID uuid.UUID, at time.Time) error
	ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)
	ExpireSupersededPayments(ctx context.Context, cutoff, at time.Time) (int, error)

	CreateTickets(ctx context.Context, tickets []domain.Ticket) error
	CountTickets(ctx context.Context, bookingID uuid.UUID) (int, error)
	GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	ListTickets(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error)
	CancelTickets(ctx context.Context, bookingID uuid.UUID) error

	InsertOutbox(ctx context.Context, record domain.OutboxRecord) error
}

// Catalog is the external event-catalog collaborator, read-only.
type Catalog interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventInfo, error)
}

// Audit is the write-only action log collaborator. Implementations must not
// fail the calling flow.
type Audit interface {
	Record(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{})
}

type Service struct {
	store   Store
	catalog Catalog
	audit   Audit
	gateway gateway.PushInitiator
	clock   clock.Clock
	logger  observability.Logger

	resendCooldown time.Duration
}

func NewService(store Store, catalog Catalog, audit Audit, gw gateway.PushInitiator, clk clock.Clock, logger observability.Logger, resendCooldown time.Duration) *Service {
	return &Service{
		store:          store,
		catalog:        catalog,
		audit:          audit,
		gateway:        gw,
		clock:          clk,
		logger:         logger,
		resendCooldown: resendCooldown,
	}
}

type CreateBookingInput struct {
	EventID     uuid.UUID
	UserID      uuid.UUID
	TicketCount int
	Phone       string
	Attendee    domain.AttendeeInfo
}

type CreateBookingResult struct {
	Booking domain.Booking
	Payment *domain.Payment
	Push    *gateway.PushResult
}

// CreateBooking reserves inventory and opens the payment attempt. The
// reservation and the booking/payment rows commit as one unit; the gateway
// push happens after that commit so a slow provider round-trip never holds a
// database transaction open. The correlation ids land in a short follow-up
// update, and a reservation whose push never went out is reconciled by the
// expiry sweeper.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	if in.TicketCount <= 0 {
		return nil, domain.ErrInvalidInput
	}
	phone, err := gateway.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}

	event, err := s.catalog.GetEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !event.Open {
		return nil, domain.ErrEventClosed
	}
	if event.Passed(now) {
		return nil, domain.ErrEventPassed
	}

	inv, err := s.store.GetInventory(ctx, in.EventID)
	if err != nil {
		return nil, err
	}

	b := domain.NewBooking(in.EventID, in.UserID, in.TicketCount, inv.TicketPrice, phone, in.Attendee, now)
	var payment *domain.Payment

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.ReserveInventory(ctx, in.EventID, in.TicketCount); err != nil {
			return err
		}

		if b.Free() {
			// Zero amount is itself the success condition: confirm and issue
			// in the same unit, no payment attempt.
			b.Status = domain.BookingConfirmed
			if err := s.store.CreateBooking(ctx, b); err != nil {
				return err
			}
			if err := s.issueTickets(ctx, b, *event); err != nil {
				return err
			}
		} else {
			if err := s.store.CreateBooking(ctx, b); err != nil {
				return err
			}
			p := domain.NewPayment(b.ID, phone, b.TotalAmount, now)
			if err := s.store.CreatePayment(ctx, p); err != nil {
				return err
			}
			payment = &p
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id": b.ID,
			"reference":  b.Reference,
			"event_id":   b.EventID,
			"tickets":    b.TicketCount,
			"amount":     b.TotalAmount,
		})
		return s.store.InsertOutbox(ctx, domain.NewOutboxRecord("booking", b.ID, domain.EventBookingCreated, payload))
	})
	if err != nil {
		observability.BookingsCreated.WithLabelValues("rejected").Inc()
		return nil, err
	}
	observability.BookingsCreated.WithLabelValues("reserved").Inc()

	s.audit.Record(ctx, "booking.created", in.UserID, map[string]interface{}{
		"booking_id": b.ID.String(),
		"reference":  b.Reference,
		"event_id":   b.EventID.String(),
		"tickets":    b.TicketCount,
		"amount":     b.TotalAmount.String(),
	})

	result := &CreateBookingResult{Booking: b, Payment: payment}
	if payment == nil {
		return result, nil
	}

	push, err := s.initiatePush(ctx, payment, b.Reference)
	if err != nil {
		// The reservation stays; the payer retries via the resend path after
		// the cool-down. Only an explicit provider rejection is surfaced.
		var rej *gateway.RejectionError
		if errors.As(err, &rej) {
			return result, errors.CombineErrors(domain.ErrGatewayRejected, err)
		}
		s.logger.WithField("payment_id", payment.ID.String()).Warn("push request failed, leaving payment pending", err)
		return result, nil
	}
	result.Push = push
	return result, nil
}

// initiatePush submits the push request and stamps the correlation ids onto
// the still-pending attempt.
func (s *Service) initiatePush(ctx context.Context, p *domain.Payment, reference string) (*gateway.PushResult, error) {
	push, err := s.gateway.InitiatePush(ctx, p.Phone, p.Amount, reference, "Tickets "+reference)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.SetPaymentRequestIDs(ctx, p.ID, push.MerchantRequestID, push.CheckoutRequestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Resolved while the push was in flight; the correlation ids are
		// stale but the attempt already has its verdict.
		s.logger.WithField("payment_id", p.ID.String()).Warn("payment resolved before correlation ids were recorded")
		return push, nil
	}
	p.MerchantRequestID = push.MerchantRequestID
	p.CheckoutRequestID = push.CheckoutRequestID
	return push, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Service) ListTickets(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error) {
	return s.store.ListTickets(ctx, bookingID)
}

func (s *Service) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return s.store.GetTicket(ctx, id)
}
