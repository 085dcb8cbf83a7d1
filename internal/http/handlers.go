package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redisadapter "github.com/tumaini/tikiti/internal/adapters/redis"
	"github.com/tumaini/tikiti/internal/booking"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/observability"
)

type Handlers struct {
	svc    *booking.Service
	idemp  *redisadapter.Idempotency
	logger observability.Logger
}

func NewHandlers(svc *booking.Service, idemp *redisadapter.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, idemp: idemp, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeError normalizes user-facing messages; internals stay in the logs.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.idemp != nil {
		if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.Status)
			w.Write(existing.Result)
			return
		}
	}

	var req struct {
		EventID       uuid.UUID `json:"event_id"`
		TicketCount   int       `json:"ticket_count"`
		Phone         string    `json:"phone"`
		AttendeeName  string    `json:"attendee_name"`
		AttendeeEmail string    `json:"attendee_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.CreateBooking(r.Context(), booking.CreateBookingInput{
		EventID:     req.EventID,
		UserID:      UserID(r.Context()),
		TicketCount: req.TicketCount,
		Phone:       req.Phone,
		Attendee:    domain.AttendeeInfo{Name: req.AttendeeName, Email: req.AttendeeEmail},
	})
	switch {
	case errors.Is(err, domain.ErrSoldOut):
		writeError(w, http.StatusConflict, "sold out")
		return
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
		return
	case errors.Is(err, domain.ErrEventClosed):
		writeError(w, http.StatusUnprocessableEntity, "event not open for sale")
		return
	case errors.Is(err, domain.ErrEventPassed):
		writeError(w, http.StatusUnprocessableEntity, "event already passed")
		return
	case errors.Is(err, domain.ErrGatewayRejected):
		// Booking and payment rows stay pending; the caller can resend.
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":             "payment request rejected",
			"booking_reference": result.Booking.Reference,
			"total_amount":      result.Booking.TotalAmount,
		})
		return
	case errors.Is(err, domain.ErrSerializationFailure):
		writeError(w, http.StatusConflict, "conflict, try again")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := map[string]interface{}{
		"booking_id":          result.Booking.ID,
		"booking_reference":   result.Booking.Reference,
		"status":              result.Booking.Status,
		"total_amount":        result.Booking.TotalAmount,
		"gateway_push_result": result.Push,
	}
	if result.Payment != nil {
		resp["payment_id"] = result.Payment.ID
	}
	data := writeJSON(w, http.StatusCreated, resp)

	if h.idemp != nil {
		h.idemp.Set(r.Context(), key, redisadapter.IdempResponse{Status: http.StatusCreated, Result: data})
	}
}

// stkCallback mirrors the gateway's webhook envelope.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// PaymentCallback always acknowledges success so the gateway never retries;
// the internal outcome is recorded independently of the response.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ack := func() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ResultCode": 0, "ResultDesc": "Success"})
	}

	var cb stkCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.logger.Warn("undecodable payment callback", err)
		ack()
		return
	}

	sc := cb.Body.StkCallback
	outcome := domain.PaymentOutcome{
		Success:    sc.ResultCode == 0,
		ResultCode: sc.ResultCode,
		ResultDesc: sc.ResultDesc,
	}
	for _, item := range sc.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if receipt, ok := item.Value.(string); ok {
				outcome.Receipt = receipt
			}
		}
	}

	if err := h.svc.HandleCallback(r.Context(), sc.CheckoutRequestID, outcome); err != nil {
		h.logger.WithField("checkout_request_id", sc.CheckoutRequestID).
			Error("callback reconciliation failed", err)
	}
	ack()
}

func (h *Handlers) AdminPaymentDecision(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Action != "approve" && req.Action != "reject") {
		writeError(w, http.StatusBadRequest, "action must be approve or reject")
		return
	}

	result, err := h.svc.DecidePayment(r.Context(), booking.AdminDecision{
		PaymentID: paymentID,
		Approve:   req.Action == "approve",
		ActorID:   UserID(r.Context()),
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
		return
	case errors.Is(err, domain.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "payment already resolved")
		return
	case err != nil:
		// Operators get the underlying cause.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            result.Payment.Status,
		"booking_reference": result.Booking.Reference,
		"amount":            result.Payment.Amount,
	})
}

func (h *Handlers) ResendPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	result, err := h.svc.Resend(r.Context(), paymentID, UserID(r.Context()))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
		return
	case errors.Is(err, domain.ErrTooSoon):
		writeError(w, http.StatusTooManyRequests, "resend attempted too soon")
		return
	case errors.Is(err, domain.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "payment already resolved")
		return
	case errors.Is(err, domain.ErrGatewayRejected):
		writeError(w, http.StatusBadGateway, "payment request rejected")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_reference":   result.Booking.Reference,
		"total_amount":        result.Booking.TotalAmount,
		"payment_id":          result.Payment.ID,
		"gateway_push_result": result.Push,
	})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	b, err := h.svc.Cancel(r.Context(), bookingID, UserID(r.Context()))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
		return
	case errors.Is(err, domain.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "booking already cancelled")
		return
	case errors.Is(err, domain.ErrAlreadyRefunded):
		writeError(w, http.StatusConflict, "booking already refunded")
		return
	case errors.Is(err, domain.ErrEventPassed):
		writeError(w, http.StatusUnprocessableEntity, "event already passed")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id":        b.ID,
		"booking_reference": b.Reference,
		"status":            b.Status,
	})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	b, err := h.svc.GetBooking(r.Context(), bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if b.UserID != UserID(r.Context()) && Role(r.Context()) != "admin" {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}

	tickets, err := h.svc.ListTickets(r.Context(), b.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	codes := make([]string, 0, len(tickets))
	for _, t := range tickets {
		codes = append(codes, t.Code)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id":        b.ID,
		"booking_reference": b.Reference,
		"event_id":          b.EventID,
		"ticket_count":      b.TicketCount,
		"total_amount":      b.TotalAmount,
		"status":            b.Status,
		"ticket_codes":      codes,
	})
}

func (h *Handlers) TicketQR(w http.ResponseWriter, r *http.Request) {
	ticketID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	t, err := h.svc.GetTicket(r.Context(), ticketID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	b, err := h.svc.GetBooking(r.Context(), t.BookingID)
	if err != nil || (b.UserID != UserID(r.Context()) && Role(r.Context()) != "admin") {
		writeError(w, http.StatusNotFound, "ticket not found")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(t.QRPNG)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
