package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")

	// ErrSoldOut is returned when the conditional inventory decrement touches
	// zero rows because available_tickets < requested count.
	ErrSoldOut = errors.New("sold out")

	// ErrAlreadyResolved means the pending->terminal payment transition lost
	// the race: the conditional update matched zero rows, someone else
	// resolved the payment first.
	ErrAlreadyResolved = errors.New("payment already resolved")

	ErrEventClosed = errors.New("event not open for sale")
	ErrEventPassed = errors.New("event already passed")

	ErrGatewayRejected = errors.New("gateway rejected push request")

	ErrTooSoon = errors.New("resend attempted inside cool-down window")

	ErrAlreadyCancelled = errors.New("booking already cancelled")
	ErrAlreadyRefunded  = errors.New("booking already refunded")

	// ErrTicketIssuance marks a confirmed booking that could not get its full
	// ticket set written. Surfaced for manual remediation, never swallowed.
	ErrTicketIssuance = errors.New("ticket issuance failed")
)
