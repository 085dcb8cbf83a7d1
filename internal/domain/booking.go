package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

// Terminal reports whether no further lifecycle transition is permitted.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingRefunded
}

type Booking struct {
	ID          uuid.UUID
	Reference   string
	EventID     uuid.UUID
	UserID      uuid.UUID
	TicketCount int
	TotalAmount decimal.Decimal
	Phone       string
	Attendee    AttendeeInfo
	Status      BookingStatus
	CreatedAt   time.Time
}

// NewBooking builds a pending booking. TicketCount and TotalAmount are
// immutable after creation; only Status moves, and only through the
// reconciliation or cancellation paths.
func NewBooking(eventID, userID uuid.UUID, count int, price decimal.Decimal, phone string, attendee AttendeeInfo, now time.Time) Booking {
	return Booking{
		ID:          uuid.New(),
		Reference:   NewBookingReference(),
		EventID:     eventID,
		UserID:      userID,
		TicketCount: count,
		TotalAmount: price.Mul(decimal.NewFromInt(int64(count))),
		Phone:       phone,
		Attendee:    attendee,
		Status:      BookingPending,
		CreatedAt:   now,
	}
}

// NewBookingReference returns a short human-readable code, e.g. TKT-3F9A21C4.
func NewBookingReference() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "TKT-" + strings.ToUpper(raw[:8])
}

// Free bookings confirm immediately; a zero amount is itself the success
// condition and no payment attempt is created.
func (b Booking) Free() bool {
	return b.TotalAmount.IsZero()
}

// EventInventory is the ledger row for one event. available+sold is constant
// for the lifetime of the event; both counters stay non-negative.
type EventInventory struct {
	EventID          uuid.UUID
	AvailableTickets int
	SoldTickets      int
	TicketPrice      decimal.Decimal
}

// EventInfo is the slice of the external event catalog the engine reads:
// existence, sale window, and the descriptive fields stamped into tickets.
type EventInfo struct {
	ID    uuid.UUID
	Title string
	Venue string
	Date  time.Time
	Open  bool
}

func (e EventInfo) Passed(now time.Time) bool {
	return e.Date.Before(now)
}

// AttendeeInfo carries the caller identity details stamped onto tickets.
type AttendeeInfo struct {
	Name  string
	Email string
}

func (a AttendeeInfo) DisplayName() string {
	if a.Name == "" {
		return "Guest"
	}
	return a.Name
}

// SeatCode derives the per-seat ticket code from the booking reference and
// the 1-based seat index, e.g. TKT-3F9A21C4-02.
func SeatCode(reference string, seat int) string {
	return fmt.Sprintf("%s-%02d", reference, seat)
}
