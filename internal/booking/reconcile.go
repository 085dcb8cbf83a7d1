package booking

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/observability"
)

// Resolve is the single pending->terminal transition for a payment and the
// choke point both confirmation paths (gateway callback, admin override) and
// the expiry sweeper serialize through. The conditional update inside
// ResolvePayment is the authority: when it touches zero rows the payment was
// already resolved and ErrAlreadyResolved comes back — the callback path
// treats that as a no-op replay, the admin path as a conflict.
func (s *Service) Resolve(ctx context.Context, paymentID uuid.UUID, outcome domain.PaymentOutcome, source domain.ResolutionSource) (*domain.Booking, error) {
	status := domain.PaymentFailed
	if outcome.Success {
		status = domain.PaymentSuccessful
	}

	var booking *domain.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.ResolvePayment(ctx, paymentID, status, outcome, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyResolved
		}

		payment, err := s.store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		booking, err = s.store.GetBooking(ctx, payment.BookingID)
		if err != nil {
			return err
		}

		if outcome.Success {
			return s.confirmBooking(ctx, booking, payment)
		}
		return s.failBooking(ctx, booking, payment)
	})
	if err != nil {
		return nil, err
	}

	observability.PaymentResolutions.WithLabelValues(string(status), string(source)).Inc()
	return booking, nil
}

// confirmBooking runs the success branch: flip the booking pending ->
// confirmed and issue tickets. Inventory was decremented at reservation
// time, so no ledger write happens here. A lost booking transition means a
// sibling attempt already settled the booking; the payment verdict stands
// but nothing else moves.
func (s *Service) confirmBooking(ctx context.Context, b *domain.Booking, p *domain.Payment) error {
	ok, err := s.store.TransitionBooking(ctx, b.ID, domain.BookingConfirmed, domain.BookingPending)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.WithField("booking_id", b.ID.String()).
			Warn("booking no longer pending, skipping confirmation side effects")
		return nil
	}
	b.Status = domain.BookingConfirmed

	event, err := s.catalog.GetEvent(ctx, b.EventID)
	if err != nil {
		return err
	}
	if err := s.issueTickets(ctx, *b, *event); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"booking_id": b.ID,
		"payment_id": p.ID,
		"reference":  b.Reference,
		"receipt":    p.Receipt,
	})
	return s.store.InsertOutbox(ctx, domain.NewOutboxRecord("payment", p.ID, domain.EventPaymentSuccessful, payload))
}

// failBooking runs the failure branch: cancel the booking and give the
// reservation back. Only the booking's latest attempt may cancel it; a
// failure on a superseded attempt records the verdict and leaves the live
// prompt alone. The conditional transition keeps the release single-shot
// even when two failure paths race.
func (s *Service) failBooking(ctx context.Context, b *domain.Booking, p *domain.Payment) error {
	latest, err := s.store.GetLatestPayment(ctx, b.ID)
	if err != nil {
		return err
	}
	if latest.ID == p.ID {
		ok, err := s.store.TransitionBooking(ctx, b.ID, domain.BookingCancelled, domain.BookingPending)
		if err != nil {
			return err
		}
		if ok {
			b.Status = domain.BookingCancelled
			if err := s.store.ReleaseInventory(ctx, b.EventID, b.TicketCount); err != nil {
				return err
			}
		}
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"booking_id":  b.ID,
		"payment_id":  p.ID,
		"reference":   b.Reference,
		"result_code": p.ResultCode,
		"result_desc": p.ResultDesc,
	})
	return s.store.InsertOutbox(ctx, domain.NewOutboxRecord("payment", p.ID, domain.EventPaymentFailed, payload))
}

// HandleCallback reconciles an externally delivered result keyed by the
// checkout request id. Unknown ids and terminal replays are acknowledged
// no-ops: the sender must never be provoked into a retry storm.
func (s *Service) HandleCallback(ctx context.Context, checkoutRequestID string, outcome domain.PaymentOutcome) error {
	payment, err := s.store.GetPaymentByCheckoutID(ctx, checkoutRequestID)
	if err == domain.ErrNotFound {
		s.logger.WithField("checkout_request_id", checkoutRequestID).
			Warn("callback for unknown payment, acknowledging without side effects")
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status.Terminal() {
		s.logger.WithField("payment_id", payment.ID.String()).
			Info("duplicate callback for resolved payment, no-op")
		return nil
	}

	booking, err := s.Resolve(ctx, payment.ID, outcome, domain.SourceCallback)
	if err == domain.ErrAlreadyResolved {
		return nil
	}
	if err != nil {
		return err
	}

	s.audit.Record(ctx, "payment.resolved", booking.UserID, map[string]interface{}{
		"payment_id":  payment.ID.String(),
		"booking_id":  booking.ID.String(),
		"source":      string(domain.SourceCallback),
		"success":     outcome.Success,
		"receipt":     outcome.Receipt,
		"result_code": outcome.ResultCode,
	})
	return nil
}

type AdminDecision struct {
	PaymentID uuid.UUID
	Approve   bool
	ActorID   uuid.UUID
}

type AdminDecisionResult struct {
	Payment *domain.Payment
	Booking *domain.Booking
}

// DecidePayment is the operator override. The still-pending re-check happens
// at transition time inside Resolve; when a callback won the race the caller
// gets ErrAlreadyResolved, never a silent overwrite.
func (s *Service) DecidePayment(ctx context.Context, d AdminDecision) (*AdminDecisionResult, error) {
	payment, err := s.store.GetPayment(ctx, d.PaymentID)
	if err != nil {
		return nil, err
	}

	outcome := domain.PaymentOutcome{
		Success:    d.Approve,
		ResultDesc: "rejected by operator",
	}
	if d.Approve {
		outcome.Receipt = "ADMIN-" + payment.ID.String()[:8]
		outcome.ResultDesc = "approved by operator"
	} else {
		outcome.ResultCode = 1
	}

	booking, err := s.Resolve(ctx, d.PaymentID, outcome, domain.SourceAdmin)
	if err != nil {
		return nil, err
	}

	payment, err = s.store.GetPayment(ctx, d.PaymentID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "payment.admin_decision", d.ActorID, map[string]interface{}{
		"payment_id": d.PaymentID.String(),
		"booking_id": booking.ID.String(),
		"approved":   d.Approve,
	})
	return &AdminDecisionResult{Payment: payment, Booking: booking}, nil
}
