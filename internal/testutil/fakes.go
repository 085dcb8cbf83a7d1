package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tumaini/tikiti/internal/domain"
	"github.com/tumaini/tikiti/internal/gateway"
)

// FakeGateway records push requests and answers with a configurable result.
// When Err is nil it hands out sequential correlation ids.
type FakeGateway struct {
	mu    sync.Mutex
	Err   error
	Calls []PushCall
}

type PushCall struct {
	Phone     string
	Amount    decimal.Decimal
	Reference string
}

func (g *FakeGateway) InitiatePush(ctx context.Context, phone string, amount decimal.Decimal, reference, description string) (*gateway.PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, PushCall{Phone: phone, Amount: amount, Reference: reference})
	if g.Err != nil {
		return nil, g.Err
	}
	n := len(g.Calls)
	return &gateway.PushResult{
		MerchantRequestID: fmt.Sprintf("merchant-%d", n),
		CheckoutRequestID: fmt.Sprintf("checkout-%d", n),
		ResponseDesc:      "Success. Request accepted for processing",
	}, nil
}

func (g *FakeGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// FakeCatalog serves events from a map.
type FakeCatalog struct {
	Events map[uuid.UUID]domain.EventInfo
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{Events: make(map[uuid.UUID]domain.EventInfo)}
}

func (c *FakeCatalog) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventInfo, error) {
	ev, ok := c.Events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ev, nil
}

// RecordingAudit keeps recorded actions for assertions.
type RecordingAudit struct {
	mu      sync.Mutex
	Actions []string
}

func (a *RecordingAudit) Record(ctx context.Context, action string, actorID uuid.UUID, data map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Actions = append(a.Actions, action)
}
