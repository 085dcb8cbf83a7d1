package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tumaini/tikiti/internal/domain"
)

func (r *Repository) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	q := r.querier(ctx)
	for _, t := range tickets {
		_, err := q.Exec(ctx, `
			INSERT INTO tickets (id, booking_id, code, qr_payload, qr_png, attendee_name, attendee_email, status, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, t.ID, t.BookingID, t.Code, t.QRPayload, t.QRPNG, t.Attendee.Name, t.Attendee.Email, t.Status, t.IssuedAt)
		if err != nil {
			return errors.Wrap(err, "create tickets")
		}
	}
	return nil
}

func (r *Repository) CountTickets(ctx context.Context, bookingID uuid.UUID) (int, error) {
	var n int
	err := r.querier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE booking_id = $1`, bookingID).Scan(&n)
	return n, errors.Wrap(err, "count tickets")
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	var t domain.Ticket
	err := r.querier(ctx).QueryRow(ctx, `
		SELECT id, booking_id, code, qr_payload, qr_png, attendee_name, attendee_email, status, issued_at, validated_at
		FROM tickets WHERE id = $1
	`, id).Scan(&t.ID, &t.BookingID, &t.Code, &t.QRPayload, &t.QRPNG,
		&t.Attendee.Name, &t.Attendee.Email, &t.Status, &t.IssuedAt, &t.ValidatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ticket")
	}
	return &t, nil
}

func (r *Repository) ListTickets(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.querier(ctx).Query(ctx, `
		SELECT id, booking_id, code, qr_payload, qr_png, attendee_name, attendee_email, status, issued_at, validated_at
		FROM tickets WHERE booking_id = $1 ORDER BY code ASC
	`, bookingID)
	if err != nil {
		return nil, errors.Wrap(err, "list tickets")
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.Code, &t.QRPayload, &t.QRPNG,
			&t.Attendee.Name, &t.Attendee.Email, &t.Status, &t.IssuedAt, &t.ValidatedAt); err != nil {
			return nil, errors.Wrap(err, "scan ticket")
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (r *Repository) CancelTickets(ctx context.Context, bookingID uuid.UUID) error {
	_, err := r.querier(ctx).Exec(ctx, `
		UPDATE tickets SET status = 'cancelled' WHERE booking_id = $1 AND status = 'active'
	`, bookingID)
	return errors.Wrap(err, "cancel tickets")
}
