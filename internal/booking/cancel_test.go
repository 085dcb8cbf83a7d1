package booking

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tumaini/tikiti/internal/domain"
)

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending booking releases the reservation", func(t *testing.T) {
		f := newFixture(t)
		res, eventID := f.book(t, ctx)

		b, err := f.svc.Cancel(ctx, res.Booking.ID, res.Booking.UserID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if b.Status != domain.BookingCancelled {
			t.Errorf("status = %s, want cancelled", b.Status)
		}
		inv := f.store.Inventories[eventID]
		if inv.AvailableTickets != 10 || inv.SoldTickets != 0 {
			t.Errorf("inventory = %d/%d, want 10/0", inv.AvailableTickets, inv.SoldTickets)
		}
		p, _ := f.store.GetPayment(ctx, res.Payment.ID)
		if p.Status != domain.PaymentCancelled {
			t.Errorf("payment status = %s, want cancelled", p.Status)
		}
	})

	t.Run("confirmed booking invalidates its tickets", func(t *testing.T) {
		f := newFixture(t)
		res, eventID := f.book(t, ctx)
		checkoutID := f.mustCheckoutID(t, ctx, res)
		if err := f.svc.HandleCallback(ctx, checkoutID, successOutcome("SBK45XW2Q1")); err != nil {
			t.Fatalf("HandleCallback: %v", err)
		}

		if _, err := f.svc.Cancel(ctx, res.Booking.ID, res.Booking.UserID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		tickets, _ := f.store.ListTickets(ctx, res.Booking.ID)
		if len(tickets) != 2 {
			t.Fatalf("tickets = %d, want 2", len(tickets))
		}
		for _, tk := range tickets {
			if tk.Status != domain.TicketCancelled {
				t.Errorf("ticket %s status = %s, want cancelled", tk.Code, tk.Status)
			}
		}
		inv := f.store.Inventories[eventID]
		if inv.AvailableTickets != 10 {
			t.Errorf("available = %d, want the seats back", inv.AvailableTickets)
		}
	})

	t.Run("double cancel is rejected and releases once", func(t *testing.T) {
		f := newFixture(t)
		res, eventID := f.book(t, ctx)

		if _, err := f.svc.Cancel(ctx, res.Booking.ID, res.Booking.UserID); err != nil {
			t.Fatalf("first Cancel: %v", err)
		}
		_, err := f.svc.Cancel(ctx, res.Booking.ID, res.Booking.UserID)
		if !errors.Is(err, domain.ErrAlreadyCancelled) {
			t.Fatalf("err = %v, want ErrAlreadyCancelled", err)
		}
		inv := f.store.Inventories[eventID]
		if inv.AvailableTickets != 10 || inv.SoldTickets != 0 {
			t.Errorf("inventory = %d/%d after double cancel, release ran twice", inv.AvailableTickets, inv.SoldTickets)
		}
	})

	t.Run("foreign booking looks like not found", func(t *testing.T) {
		f := newFixture(t)
		res, _ := f.book(t, ctx)

		_, err := f.svc.Cancel(ctx, res.Booking.ID, uuid.New())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("past event cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		res, eventID := f.book(t, ctx)
		f.clock.Advance(96 * time.Hour)

		_, err := f.svc.Cancel(ctx, res.Booking.ID, res.Booking.UserID)
		if !errors.Is(err, domain.ErrEventPassed) {
			t.Fatalf("err = %v, want ErrEventPassed", err)
		}
		inv := f.store.Inventories[eventID]
		if inv.SoldTickets != 2 {
			t.Errorf("sold = %d, reservation must stand", inv.SoldTickets)
		}
	})
}
