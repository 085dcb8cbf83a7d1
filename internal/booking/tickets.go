package booking

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/observability"
)

const qrSize = 256

// issueTickets writes one ticket per purchased seat, inside the caller's
// transaction. The existing-ticket guard protects against a double
// invocation squeezing past the pending-payment guard; the conditional
// booking transition is the primary defense, this is the belt.
func (s *Service) issueTickets(ctx context.Context, b domain.Booking, event domain.EventInfo) error {
	attendee := b.Attendee
	existing, err := s.store.CountTickets(ctx, b.ID)
	if err != nil {
		return err
	}
	if existing > 0 {
		s.logger.WithField("booking_id", b.ID.String()).Warn("tickets already issued, skipping")
		return nil
	}

	now := s.clock.Now()
	tickets := make([]domain.Ticket, 0, b.TicketCount)
	for seat := 1; seat <= b.TicketCount; seat++ {
		id := uuid.New()
		payload := domain.QRPayload{
			TicketID:         id,
			EventID:          event.ID,
			EventTitle:       event.Title,
			BookingReference: b.Reference,
			AttendeeName:     attendee.DisplayName(),
			AttendeeEmail:    attendee.Email,
			EventDate:        event.Date,
			Venue:            event.Venue,
			IssuedAt:         now,
		}
		raw, err := payload.Marshal()
		if err != nil {
			observability.IssuanceInconsistencies.Inc()
			return errors.CombineErrors(domain.ErrTicketIssuance, err)
		}
		png, err := qrcode.Encode(string(raw), qrcode.Medium, qrSize)
		if err != nil {
			observability.IssuanceInconsistencies.Inc()
			return errors.CombineErrors(domain.ErrTicketIssuance, err)
		}
		tickets = append(tickets, domain.Ticket{
			ID:        id,
			BookingID: b.ID,
			Code:      domain.SeatCode(b.Reference, seat),
			QRPayload: raw,
			QRPNG:     png,
			Attendee:  attendee,
			Status:    domain.TicketActive,
			IssuedAt:  now,
		})
	}

	if err := s.store.CreateTickets(ctx, tickets); err != nil {
		observability.IssuanceInconsistencies.Inc()
		return errors.CombineErrors(domain.ErrTicketIssuance, err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"booking_id": b.ID,
		"reference":  b.Reference,
		"count":      len(tickets),
	})
	if err := s.store.InsertOutbox(ctx, domain.NewOutboxRecord("booking", b.ID, domain.EventTicketsIssued, payload)); err != nil {
		return err
	}

	observability.TicketsIssued.Add(float64(len(tickets)))
	return nil
}
