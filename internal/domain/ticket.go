package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is one issued seat. Created only by the issuer, at most once per
// seat per booking: count(tickets) == booking.TicketCount whenever the
// booking is confirmed, zero otherwise.
type Ticket struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	Code        string
	QRPayload   []byte
	QRPNG       []byte
	Attendee    AttendeeInfo
	Status      TicketStatus
	IssuedAt    time.Time
	ValidatedAt *time.Time
}

// QRPayload is the persisted artifact scanned at the venue. It must
// round-trip through JSON unchanged.
type QRPayload struct {
	TicketID         uuid.UUID `json:"ticketId"`
	EventID          uuid.UUID `json:"eventId"`
	EventTitle       string    `json:"eventTitle"`
	BookingReference string    `json:"bookingReference"`
	AttendeeName     string    `json:"attendeeName"`
	AttendeeEmail    string    `json:"attendeeEmail"`
	EventDate        time.Time `json:"eventDate"`
	Venue            string    `json:"venue"`
	IssuedAt         time.Time `json:"issuedAt"`
}

func (p QRPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func ParseQRPayload(data []byte) (QRPayload, error) {
	var p QRPayload
	err := json.Unmarshal(data, &p)
	return p, err
}
