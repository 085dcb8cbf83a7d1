package booking

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
)

// Cancel reverses a pending or confirmed booking before the event: gives the
// reservation back exactly once, closes out payments for bookkeeping (no
// money movement) and invalidates any issued tickets. The conditional status
// flip makes the inventory release single-shot.
func (s *Service) Cancel(ctx context.Context, bookingID, userID uuid.UUID) (*domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, domain.ErrNotFound
	}

	switch b.Status {
	case domain.BookingCancelled:
		return nil, domain.ErrAlreadyCancelled
	case domain.BookingRefunded:
		return nil, domain.ErrAlreadyRefunded
	}

	event, err := s.catalog.GetEvent(ctx, b.EventID)
	if err != nil {
		return nil, err
	}
	if event.Passed(s.clock.Now()) {
		return nil, domain.ErrEventPassed
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.TransitionBooking(ctx, b.ID, domain.BookingCancelled,
			domain.BookingPending, domain.BookingConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			// Someone else moved the booking between the read and the flip.
			current, err := s.store.GetBooking(ctx, b.ID)
			if err != nil {
				return err
			}
			if current.Status == domain.BookingRefunded {
				return domain.ErrAlreadyRefunded
			}
			return domain.ErrAlreadyCancelled
		}

		if err := s.store.ReleaseInventory(ctx, b.EventID, b.TicketCount); err != nil {
			return err
		}
		if err := s.store.CancelBookingPayments(ctx, b.ID, s.clock.Now()); err != nil {
			return err
		}
		if err := s.store.CancelTickets(ctx, b.ID); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"booking_id": b.ID,
			"reference":  b.Reference,
			"tickets":    b.TicketCount,
		})
		return s.store.InsertOutbox(ctx, domain.NewOutboxRecord("booking", b.ID, domain.EventBookingCancelled, payload))
	})
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingCancelled

	s.audit.Record(ctx, "booking.cancelled", userID, map[string]interface{}{
		"booking_id": b.ID.String(),
		"reference":  b.Reference,
	})
	return b, nil
}
