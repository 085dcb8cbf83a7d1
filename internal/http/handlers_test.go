package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/tumaini/tikiti/internal/booking"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/observability"
	"github.com/tumaini/tikiti/internal/testutil"
)

const testSecret = "test-secret"

type webFixture struct {
	store   *testutil.MemStore
	catalog *testutil.FakeCatalog
	gateway *testutil.FakeGateway
	clock   *testutil.Clock
	svc     *booking.Service
	router  *chi.Mux
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	logger := observability.NewLogger()
	f := &webFixture{
		store:   testutil.NewMemStore(),
		catalog: testutil.NewFakeCatalog(),
		gateway: &testutil.FakeGateway{},
		clock:   testutil.NewClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)),
	}
	f.svc = booking.NewService(f.store, f.catalog, &testutil.RecordingAudit{}, f.gateway, f.clock, logger, 10*time.Minute)
	f.router = SetupRouter(NewHandlers(f.svc, nil, logger), logger, nil, testSecret)
	return f
}

func (f *webFixture) seedEvent(t *testing.T, available int, price string) uuid.UUID {
	t.Helper()
	eventID := uuid.New()
	f.catalog.Events[eventID] = domain.EventInfo{
		ID:    eventID,
		Title: "Sauti Fest",
		Venue: "Uhuru Gardens",
		Date:  f.clock.Now().Add(72 * time.Hour),
		Open:  true,
	}
	f.store.Inventories[eventID] = domain.EventInventory{
		EventID:          eventID,
		AvailableTickets: available,
		TicketPrice:      decimal.RequireFromString(price),
	}
	return eventID
}

// book runs the intake directly so transport tests start from a known state.
func (f *webFixture) book(t *testing.T, eventID, userID uuid.UUID, count int) *booking.CreateBookingResult {
	t.Helper()
	res, err := f.svc.CreateBooking(context.Background(), booking.CreateBookingInput{
		EventID:     eventID,
		UserID:      userID,
		TicketCount: count,
		Phone:       "0712345678",
		Attendee:    domain.AttendeeInfo{Name: "Wanjiru Kamau", Email: "wanjiru@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return res
}

func signToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *webFixture) do(t *testing.T, method, path, token string, body interface{}, extra map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func idempHeader() map[string]string {
	return map[string]string{"Idempotency-Key": uuid.New().String()}
}

func TestCreateBookingEndpoint(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		userID := uuid.New()

		w := f.do(t, http.MethodPost, "/v1/bookings", signToken(t, userID, ""), map[string]interface{}{
			"event_id":      eventID,
			"ticket_count":  2,
			"phone":         "0712345678",
			"attendee_name": "Wanjiru Kamau",
		}, idempHeader())

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp struct {
			BookingReference string `json:"booking_reference"`
			Status           string `json:"status"`
			PaymentID        string `json:"payment_id"`
			Push             struct {
				CheckoutRequestID string `json:"checkout_request_id"`
			} `json:"gateway_push_result"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "pending" {
			t.Errorf("status = %s, want pending", resp.Status)
		}
		if resp.PaymentID == "" || resp.Push.CheckoutRequestID == "" {
			t.Errorf("payment/push missing: %s", w.Body.String())
		}
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")

		w := f.do(t, http.MethodPost, "/v1/bookings", signToken(t, uuid.New(), ""), map[string]interface{}{
			"event_id": eventID, "ticket_count": 1, "phone": "0712345678",
		}, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("no token", func(t *testing.T) {
		f := newWebFixture(t)
		w := f.do(t, http.MethodPost, "/v1/bookings", "", nil, idempHeader())
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("sold out maps to conflict", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 1, "1500")

		w := f.do(t, http.MethodPost, "/v1/bookings", signToken(t, uuid.New(), ""), map[string]interface{}{
			"event_id": eventID, "ticket_count": 2, "phone": "0712345678",
		}, idempHeader())
		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	t.Run("unknown event maps to not found", func(t *testing.T) {
		f := newWebFixture(t)
		w := f.do(t, http.MethodPost, "/v1/bookings", signToken(t, uuid.New(), ""), map[string]interface{}{
			"event_id": uuid.New(), "ticket_count": 1, "phone": "0712345678",
		}, idempHeader())
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func callbackBody(checkoutID string, resultCode int, receipt string) map[string]interface{} {
	items := []map[string]interface{}{}
	if receipt != "" {
		items = append(items, map[string]interface{}{"Name": "MpesaReceiptNumber", "Value": receipt})
	}
	return map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": checkoutID,
				"ResultCode":        resultCode,
				"ResultDesc":        "ok",
				"CallbackMetadata":  map[string]interface{}{"Item": items},
			},
		},
	}
}

func TestPaymentCallbackEndpoint(t *testing.T) {
	assertAck := func(t *testing.T, w *httptest.ResponseRecorder) {
		t.Helper()
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var ack struct {
			ResultCode int    `json:"ResultCode"`
			ResultDesc string `json:"ResultDesc"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if ack.ResultCode != 0 || ack.ResultDesc != "Success" {
			t.Errorf("ack = %+v, want {0 Success}", ack)
		}
	}

	t.Run("success confirms the booking", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		res := f.book(t, eventID, uuid.New(), 2)
		p, _ := f.store.GetPayment(context.Background(), res.Payment.ID)

		w := f.do(t, http.MethodPost, "/v1/payments/callback", "", callbackBody(p.CheckoutRequestID, 0, "SBK45XW2Q1"), nil)
		assertAck(t, w)

		b, _ := f.store.GetBooking(context.Background(), res.Booking.ID)
		if b.Status != domain.BookingConfirmed {
			t.Errorf("booking = %s, want confirmed", b.Status)
		}
		refreshed, _ := f.store.GetPayment(context.Background(), res.Payment.ID)
		if refreshed.Receipt != "SBK45XW2Q1" {
			t.Errorf("receipt = %s", refreshed.Receipt)
		}
	})

	t.Run("unknown id is still acknowledged", func(t *testing.T) {
		f := newWebFixture(t)
		w := f.do(t, http.MethodPost, "/v1/payments/callback", "", callbackBody("ws_CO_never_seen", 0, "X"), nil)
		assertAck(t, w)
	})

	t.Run("garbage body is still acknowledged", func(t *testing.T) {
		f := newWebFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", bytes.NewBufferString("not json"))
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assertAck(t, w)
	})

	t.Run("duplicate delivery is acknowledged twice", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		res := f.book(t, eventID, uuid.New(), 1)
		p, _ := f.store.GetPayment(context.Background(), res.Payment.ID)

		assertAck(t, f.do(t, http.MethodPost, "/v1/payments/callback", "", callbackBody(p.CheckoutRequestID, 0, "SBK45XW2Q1"), nil))
		assertAck(t, f.do(t, http.MethodPost, "/v1/payments/callback", "", callbackBody(p.CheckoutRequestID, 0, "SBK45XW2Q1"), nil))

		if n, _ := f.store.CountTickets(context.Background(), res.Booking.ID); n != 1 {
			t.Errorf("tickets = %d, want 1 after duplicate delivery", n)
		}
	})
}

func TestAdminDecisionEndpoint(t *testing.T) {
	t.Run("requires the admin role", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		res := f.book(t, eventID, uuid.New(), 1)

		path := fmt.Sprintf("/v1/admin/payments/%s/decision", res.Payment.ID)
		w := f.do(t, http.MethodPost, path, signToken(t, uuid.New(), ""), map[string]string{"action": "approve"}, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", w.Code)
		}
	})

	t.Run("approve then late decision conflicts", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		res := f.book(t, eventID, uuid.New(), 1)
		admin := signToken(t, uuid.New(), "admin")
		path := fmt.Sprintf("/v1/admin/payments/%s/decision", res.Payment.ID)

		w := f.do(t, http.MethodPost, path, admin, map[string]string{"action": "approve"}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp struct {
			Status string `json:"status"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Status != "successful" {
			t.Errorf("status = %s, want successful", resp.Status)
		}

		w = f.do(t, http.MethodPost, path, admin, map[string]string{"action": "reject"}, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("second decision status = %d, want 409", w.Code)
		}
	})

	t.Run("rejects unknown actions", func(t *testing.T) {
		f := newWebFixture(t)
		admin := signToken(t, uuid.New(), "admin")
		path := fmt.Sprintf("/v1/admin/payments/%s/decision", uuid.New())
		w := f.do(t, http.MethodPost, path, admin, map[string]string{"action": "maybe"}, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestBookingEndpoints(t *testing.T) {
	t.Run("owner reads booking with ticket codes", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "0")
		userID := uuid.New()
		res := f.book(t, eventID, userID, 2)

		w := f.do(t, http.MethodGet, "/v1/bookings/"+res.Booking.ID.String(), signToken(t, userID, ""), nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp struct {
			TicketCodes []string `json:"ticket_codes"`
			Status      string   `json:"status"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "confirmed" || len(resp.TicketCodes) != 2 {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("stranger sees not found", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		res := f.book(t, eventID, uuid.New(), 1)

		w := f.do(t, http.MethodGet, "/v1/bookings/"+res.Booking.ID.String(), signToken(t, uuid.New(), ""), nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("cancel releases and reports the new status", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		userID := uuid.New()
		res := f.book(t, eventID, userID, 2)
		token := signToken(t, userID, "")
		path := "/v1/bookings/" + res.Booking.ID.String() + "/cancel"

		w := f.do(t, http.MethodPost, path, token, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		if w = f.do(t, http.MethodPost, path, token, nil, nil); w.Code != http.StatusConflict {
			t.Errorf("double cancel status = %d, want 409", w.Code)
		}
	})

	t.Run("resend inside the cool-down", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "1500")
		userID := uuid.New()
		res := f.book(t, eventID, userID, 1)

		path := "/v1/payments/" + res.Payment.ID.String() + "/resend"
		w := f.do(t, http.MethodPost, path, signToken(t, userID, ""), nil, nil)
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", w.Code)
		}
	})

	t.Run("ticket QR serves the image to the owner", func(t *testing.T) {
		f := newWebFixture(t)
		eventID := f.seedEvent(t, 10, "0")
		userID := uuid.New()
		res := f.book(t, eventID, userID, 1)
		tickets, _ := f.store.ListTickets(context.Background(), res.Booking.ID)

		w := f.do(t, http.MethodGet, "/v1/tickets/"+tickets[0].ID.String()+"/qr", signToken(t, userID, ""), nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("content type = %s", ct)
		}
		if w.Body.Len() == 0 {
			t.Error("empty QR body")
		}
	})
}

func TestRequestMetrics(t *testing.T) {
	f := newWebFixture(t)

	counter := observability.RequestsTotal.WithLabelValues("/v1/healthz", "200", http.MethodGet)
	before := promtestutil.ToFloat64(counter)

	w := f.do(t, http.MethodGet, "/v1/healthz", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if got := promtestutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("requests_total delta = %v, want 1", got)
	}

	// Parameterized routes aggregate under the chi pattern, not the raw path.
	pattern := observability.RequestsTotal.WithLabelValues("/v1/bookings/{id}", "404", http.MethodGet)
	before = promtestutil.ToFloat64(pattern)
	userID := uuid.New()
	f.do(t, http.MethodGet, "/v1/bookings/"+uuid.New().String(), signToken(t, userID, ""), nil, nil)
	if got := promtestutil.ToFloat64(pattern) - before; got != 1 {
		t.Errorf("pattern-labelled delta = %v, want 1", got)
	}
}
