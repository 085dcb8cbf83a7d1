package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/gateway"
)

// Resend opens a fresh payment attempt for a booking whose push never
// completed and asks the gateway again, rotating the correlation ids. A
// cool-down since the latest attempt keeps the payer's phone from being
// spammed with prompts.
func (s *Service) Resend(ctx context.Context, paymentID, userID uuid.UUID) (*CreateBookingResult, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.ErrNotFound
	}
	if b.Status != domain.BookingPending {
		return nil, domain.ErrAlreadyResolved
	}

	// The cool-down verdict and the new attempt row commit as one unit, so
	// two racing resends cannot both pass the check and double-prompt the
	// payer's phone.
	var attempt domain.Payment
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		latest, err := s.store.GetLatestPayment(ctx, b.ID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if now.Sub(latest.InitiatedAt) < s.resendCooldown {
			return domain.ErrTooSoon
		}
		attempt = domain.NewPayment(b.ID, payment.Phone, b.TotalAmount, now)
		return s.store.CreatePayment(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "payment.resent", userID, map[string]interface{}{
		"booking_id":  b.ID.String(),
		"payment_id":  attempt.ID.String(),
		"previous_id": payment.ID.String(),
	})

	result := &CreateBookingResult{Booking: *b, Payment: &attempt}
	push, err := s.initiatePush(ctx, &attempt, b.Reference)
	if err != nil {
		var rej *gateway.RejectionError
		if errors.As(err, &rej) {
			return result, errors.CombineErrors(domain.ErrGatewayRejected, err)
		}
		s.logger.WithField("payment_id", attempt.ID.String()).Warn("resend push failed, leaving payment pending", err)
		return result, nil
	}
	result.Push = push
	return result, nil
}
