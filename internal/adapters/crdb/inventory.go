package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tumaini/tikiti/internal/domain"
)

// ReserveInventory decrements available and increments sold as one
// conditional update. A zero-row result is the authority that inventory was
// insufficient at commit time; there is no read-then-write window.
func (r *Repository) ReserveInventory(ctx context.Context, eventID uuid.UUID, count int) error {
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE event_inventory
		SET available_tickets = available_tickets - $2,
		    sold_tickets = sold_tickets + $2
		WHERE event_id = $1 AND available_tickets >= $2
	`, eventID, count)
	if err != nil {
		return errors.Wrap(err, "reserve inventory")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSoldOut
	}
	return nil
}

// ReleaseInventory is the exact inverse of ReserveInventory. Idempotence per
// booking is enforced by the caller's conditional booking-status flip, never
// by this counter arithmetic.
func (r *Repository) ReleaseInventory(ctx context.Context, eventID uuid.UUID, count int) error {
	result, err := r.querier(ctx).Exec(ctx, `
		UPDATE event_inventory
		SET available_tickets = available_tickets + $2,
		    sold_tickets = sold_tickets - $2
		WHERE event_id = $1 AND sold_tickets >= $2
	`, eventID, count)
	if err != nil {
		return errors.Wrap(err, "release inventory")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) GetInventory(ctx context.Context, eventID uuid.UUID) (*domain.EventInventory, error) {
	var inv domain.EventInventory
	err := r.querier(ctx).QueryRow(ctx, `
		SELECT event_id, available_tickets, sold_tickets, ticket_price
		FROM event_inventory WHERE event_id = $1
	`, eventID).Scan(&inv.EventID, &inv.AvailableTickets, &inv.SoldTickets, &inv.TicketPrice)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get inventory")
	}
	return &inv, nil
}

// UpsertInventory seeds or adjusts a ledger row; used by operational tooling
// and tests, never by the booking paths.
func (r *Repository) UpsertInventory(ctx context.Context, inv domain.EventInventory) error {
	_, err := r.querier(ctx).Exec(ctx, `
		INSERT INTO event_inventory (event_id, available_tickets, sold_tickets, ticket_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE
		SET available_tickets = $2, sold_tickets = $3, ticket_price = $4
	`, inv.EventID, inv.AvailableTickets, inv.SoldTickets, inv.TicketPrice)
	return errors.Wrap(err, "upsert inventory")
}
