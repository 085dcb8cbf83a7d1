package crdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tumaini/tikiti/internal/adapters/crdb"
	"github.com/tumaini/tikiti/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS event_inventory (
		event_id UUID PRIMARY KEY,
		available_tickets INT NOT NULL CHECK (available_tickets >= 0),
		sold_tickets INT NOT NULL CHECK (sold_tickets >= 0),
		ticket_price NUMERIC NOT NULL
	);
	CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		reference TEXT NOT NULL,
		event_id UUID NOT NULL,
		user_id UUID NOT NULL,
		ticket_count INT NOT NULL,
		total_amount NUMERIC NOT NULL,
		phone TEXT NOT NULL,
		attendee_name TEXT NOT NULL DEFAULT '',
		attendee_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'cancelled', 'refunded')),
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL,
		phone TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		merchant_request_id TEXT NOT NULL DEFAULT '',
		checkout_request_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('pending', 'successful', 'failed', 'cancelled')),
		receipt TEXT NOT NULL DEFAULT '',
		result_code INT NOT NULL DEFAULT 0,
		result_desc TEXT NOT NULL DEFAULT '',
		initiated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY,
		booking_id UUID NOT NULL,
		code TEXT NOT NULL UNIQUE,
		qr_payload BYTEA NOT NULL,
		qr_png BYTEA NOT NULL,
		attendee_name TEXT NOT NULL DEFAULT '',
		attendee_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('active', 'used', 'cancelled')),
		issued_at TIMESTAMPTZ NOT NULL,
		validated_at TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		dedupe_key TEXT NOT NULL
	);
`

func newTestRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	return crdb.NewRepository(pool), pool
}

func seedInventory(t *testing.T, repo *crdb.Repository, available int) uuid.UUID {
	t.Helper()
	eventID := uuid.New()
	err := repo.UpsertInventory(context.Background(), domain.EventInventory{
		EventID:          eventID,
		AvailableTickets: available,
		TicketPrice:      decimal.NewFromInt(1500),
	})
	if err != nil {
		t.Fatal(err)
	}
	return eventID
}

func TestRepository_ReserveInventory(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	eventID := seedInventory(t, repo, 5)

	// More contenders than seats: the conditional update must admit exactly
	// the capacity.
	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.ReserveInventory(ctx, eventID, 1)
		}(i)
	}
	wg.Wait()

	var won, soldOut int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrSoldOut):
			soldOut++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 5 || soldOut != 3 {
		t.Errorf("won=%d soldOut=%d, want 5/3", won, soldOut)
	}

	inv, err := repo.GetInventory(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if inv.AvailableTickets != 0 || inv.SoldTickets != 5 {
		t.Errorf("inventory = %d/%d, want 0/5", inv.AvailableTickets, inv.SoldTickets)
	}

	if err := repo.ReleaseInventory(ctx, eventID, 2); err != nil {
		t.Fatalf("ReleaseInventory: %v", err)
	}
	inv, _ = repo.GetInventory(ctx, eventID)
	if inv.AvailableTickets != 2 || inv.SoldTickets != 3 {
		t.Errorf("inventory after release = %d/%d, want 2/3", inv.AvailableTickets, inv.SoldTickets)
	}

	if err := repo.ReleaseInventory(ctx, eventID, 4); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("over-release err = %v, want ErrNotFound", err)
	}
}

func TestRepository_ResolvePayment(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	eventID := seedInventory(t, repo, 10)
	b := domain.NewBooking(eventID, uuid.New(), 2, decimal.NewFromInt(1500), "254712345678",
		domain.AttendeeInfo{Name: "Wanjiru Kamau"}, now)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	p := domain.NewPayment(b.ID, b.Phone, b.TotalAmount, now)
	if err := repo.CreatePayment(ctx, p); err != nil {
		t.Fatal(err)
	}

	if ok, err := repo.SetPaymentRequestIDs(ctx, p.ID, "merchant-1", "checkout-1"); err != nil || !ok {
		t.Fatalf("SetPaymentRequestIDs = %v/%v, want stamped", ok, err)
	}
	byCheckout, err := repo.GetPaymentByCheckoutID(ctx, "checkout-1")
	if err != nil || byCheckout.ID != p.ID {
		t.Fatalf("GetPaymentByCheckoutID = %v/%v", byCheckout, err)
	}

	outcome := domain.PaymentOutcome{Success: true, Receipt: "SBK45XW2Q1", ResultDesc: "ok"}
	ok, err := repo.ResolvePayment(ctx, p.ID, domain.PaymentSuccessful, outcome, now)
	if err != nil || !ok {
		t.Fatalf("first resolve = %v/%v, want applied", ok, err)
	}

	// The conditional update is the serialization authority: a second verdict
	// touches zero rows.
	ok, err = repo.ResolvePayment(ctx, p.ID, domain.PaymentFailed, domain.PaymentOutcome{ResultCode: 1}, now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second resolve was applied over a terminal status")
	}

	stored, err := repo.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.PaymentSuccessful || stored.Receipt != "SBK45XW2Q1" {
		t.Errorf("payment = %s/%s, first verdict must stand", stored.Status, stored.Receipt)
	}
	if stored.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	// Stamping correlation ids is likewise pending-only.
	if ok, err := repo.SetPaymentRequestIDs(ctx, p.ID, "merchant-2", "checkout-2"); err != nil || ok {
		t.Errorf("stamp on resolved payment = %v/%v, want no-op", ok, err)
	}
}

func TestRepository_StalePaymentQueries(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	eventID := seedInventory(t, repo, 10)
	b := domain.NewBooking(eventID, uuid.New(), 2, decimal.NewFromInt(1500), "254712345678",
		domain.AttendeeInfo{Name: "Wanjiru Kamau"}, now.Add(-3*time.Hour))
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}
	first := domain.NewPayment(b.ID, b.Phone, b.TotalAmount, now.Add(-3*time.Hour))
	if err := repo.CreatePayment(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := domain.NewPayment(b.ID, b.Phone, b.TotalAmount, now.Add(-10*time.Minute))
	if err := repo.CreatePayment(ctx, second); err != nil {
		t.Fatal(err)
	}

	// The first attempt is past the cutoff but superseded by the second,
	// which is fresh, so the stale listing must come back empty.
	cutoff := now.Add(-2 * time.Hour)
	stale, err := repo.ListStalePendingPayments(ctx, cutoff, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale = %d attempts, a superseded attempt must not be listed", len(stale))
	}

	expired, err := repo.ExpireSupersededPayments(ctx, cutoff, now)
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want only the superseded attempt", expired)
	}
	stored, err := repo.GetPayment(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.PaymentFailed || stored.CompletedAt == nil {
		t.Errorf("superseded attempt = %s, want failed with completed_at stamped", stored.Status)
	}
	live, err := repo.GetPayment(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if live.Status != domain.PaymentPending {
		t.Errorf("live attempt = %s, must stay pending", live.Status)
	}

	// Once the latest attempt itself crosses the cutoff it is listed.
	stale, err = repo.ListStalePendingPayments(ctx, now.Add(-5*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != second.ID {
		t.Fatalf("stale = %v, want the latest attempt once it ages out", stale)
	}
}

func TestRepository_TransitionBooking(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	eventID := seedInventory(t, repo, 10)
	b := domain.NewBooking(eventID, uuid.New(), 1, decimal.NewFromInt(1000), "254712345678",
		domain.AttendeeInfo{}, now)
	if err := repo.CreateBooking(ctx, b); err != nil {
		t.Fatal(err)
	}

	ok, err := repo.TransitionBooking(ctx, b.ID, domain.BookingConfirmed, domain.BookingPending)
	if err != nil || !ok {
		t.Fatalf("pending->confirmed = %v/%v", ok, err)
	}
	ok, err = repo.TransitionBooking(ctx, b.ID, domain.BookingConfirmed, domain.BookingPending)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("transition from a state the booking left must not apply")
	}
	ok, err = repo.TransitionBooking(ctx, b.ID, domain.BookingCancelled,
		domain.BookingPending, domain.BookingConfirmed)
	if err != nil || !ok {
		t.Fatalf("confirmed->cancelled = %v/%v", ok, err)
	}
}

func TestRepository_Outbox(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	rec := domain.NewOutboxRecord("booking", uuid.New(), domain.EventBookingCreated, []byte(`{"k":"v"}`))
	if err := repo.InsertOutbox(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("unpublished = %v, want the inserted record", records)
	}

	if err := repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	records, err = repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("published record still listed: %v", records)
	}
}
