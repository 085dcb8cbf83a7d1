package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outbox event types drained to the broker by cmd/outbox-publisher.
const (
	EventBookingCreated    = "booking.created"
	EventBookingCancelled  = "booking.cancelled"
	EventPaymentSuccessful = "payment.successful"
	EventPaymentFailed     = "payment.failed"
	EventTicketsIssued     = "tickets.issued"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

func NewOutboxRecord(aggregateType string, aggregateID uuid.UUID, eventType string, payload []byte) OutboxRecord {
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        "NEW",
		DedupeKey:     uuid.New().String(),
	}
}
