package gateway

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// PushResult carries the gateway correlation identifiers used to match the
// asynchronous callback back to the attempt that requested it.
type PushResult struct {
	MerchantRequestID string `json:"merchant_request_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	ResponseDesc      string `json:"response_description"`
}

// PushInitiator is the capability the booking engine consumes. The concrete
// client talks to the provider; tests substitute a fake.
type PushInitiator interface {
	InitiatePush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*PushResult, error)
}

// Typed gateway failures. Auth and network failures are retryable via the
// resend path; a rejection is the provider refusing the request itself.
var (
	ErrAuth        = errors.New("gateway authentication failed")
	ErrUnavailable = errors.New("gateway unreachable")
)

// RejectionError is a provider-level refusal with the provider's code.
type RejectionError struct {
	Code string
	Desc string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway rejected request: code=%s desc=%s", e.Code, e.Desc)
}
