package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether the status is write-once final. The pending ->
// terminal transition is guarded by a conditional update; nothing ever
// leaves a terminal state.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentPending
}

// Payment is one push-payment attempt against a booking. A booking
// accumulates sequential attempts when the push is resent; the correlation
// ids tie an asynchronous gateway callback back to the attempt that
// requested it.
type Payment struct {
	ID                uuid.UUID
	BookingID         uuid.UUID
	Phone             string
	Amount            decimal.Decimal
	MerchantRequestID string
	CheckoutRequestID string
	Status            PaymentStatus
	Receipt           string
	ResultCode        int
	ResultDesc        string
	InitiatedAt       time.Time
	CompletedAt       *time.Time
}

func NewPayment(bookingID uuid.UUID, phone string, amount decimal.Decimal, now time.Time) Payment {
	return Payment{
		ID:          uuid.New(),
		BookingID:   bookingID,
		Phone:       phone,
		Amount:      amount,
		Status:      PaymentPending,
		InitiatedAt: now,
	}
}

// PaymentOutcome is the normalized result fed into the reconciliation choke
// point, whichever entry path produced it.
type PaymentOutcome struct {
	Success    bool
	Receipt    string
	ResultCode int
	ResultDesc string
}

// ResolutionSource labels who drove a pending payment to a terminal state.
type ResolutionSource string

const (
	SourceCallback ResolutionSource = "callback"
	SourceAdmin    ResolutionSource = "admin"
	SourceSweeper  ResolutionSource = "sweeper"
)
