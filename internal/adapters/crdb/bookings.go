package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tumaini/tikiti/internal/domain"
)

func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking) error {
	_, err := r.querier(ctx).Exec(ctx, `
		INSERT INTO bookings (id, reference, event_id, user_id, ticket_count, total_amount, phone,
		                      attendee_name, attendee_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.Reference, b.EventID, b.UserID, b.TicketCount, b.TotalAmount, b.Phone,
		b.Attendee.Name, b.Attendee.Email, b.Status, b.CreatedAt)
	return errors.Wrap(err, "create booking")
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	err := r.querier(ctx).QueryRow(ctx, `
		SELECT id, reference, event_id, user_id, ticket_count, total_amount, phone,
		       attendee_name, attendee_email, status, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.Reference, &b.EventID, &b.UserID, &b.TicketCount, &b.TotalAmount, &b.Phone,
		&b.Attendee.Name, &b.Attendee.Email, &b.Status, &b.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get booking")
	}
	return &b, nil
}

// TransitionBooking flips status only when the current status is one of the
// listed ones. The returned bool is the affected-row count verdict: false
// means someone else moved the booking first.
func (r *Repository) TransitionBooking(ctx context.Context, id uuid.UUID, to domain.BookingStatus, from ...domain.BookingStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE bookings SET status = $2 WHERE id = $1 AND status = ANY($3)
	`, id, to, states)
	if err != nil {
		return false, errors.Wrap(err, "transition booking")
	}
	return result.RowsAffected() > 0, nil
}
