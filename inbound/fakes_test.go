package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

type bridgeCall struct {
	Method  string
	OrderID string
}

type fakeBridge struct {
	mu     sync.Mutex
	orders map[string]*core.OrderRef
	calls  []bridgeCall
	failOn map[string]error
	nextID int
	// createDelay stalls CreateOrder to stretch a poll cycle.
	createDelay time.Duration
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{orders: map[string]*core.OrderRef{}, failOn: map[string]error{}}
}

func (b *fakeBridge) record(method string, orderID string) error {
	b.calls = append(b.calls, bridgeCall{Method: method, OrderID: orderID})
	return b.failOn[method]
}

func (b *fakeBridge) count(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, call := range b.calls {
		if call.Method == method {
			total++
		}
	}
	return total
}

func (b *fakeBridge) CreateOrder(_ context.Context, _ string, detail core.OrderDetail) (core.OrderRef, error) {
	if b.createDelay > 0 {
		time.Sleep(b.createDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("CreateOrder", detail.ID); err != nil {
		return core.OrderRef{}, err
	}
	b.nextID++
	ref := &core.OrderRef{UUID: fmt.Sprintf("local-%d", b.nextID), RemoteID: detail.ID, Status: core.OrderStatusPending}
	b.orders[detail.ID] = ref
	return *ref, nil
}

func (b *fakeBridge) AcceptOrder(_ context.Context, ref core.OrderRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("AcceptOrder", ref.RemoteID)
}

func (b *fakeBridge) RequestOrderCancellation(_ context.Context, ref core.OrderRef, _ core.CancellationRequester) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("RequestOrderCancellation", ref.RemoteID)
}

func (b *fakeBridge) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("CancelOrder", orderID); err != nil {
		return err
	}
	if ref, ok := b.orders[orderID]; ok {
		ref.Status = core.OrderStatusCancelled
	}
	return nil
}

func (b *fakeBridge) FinishOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("FinishOrder", orderID); err != nil {
		return err
	}
	if ref, ok := b.orders[orderID]; ok {
		ref.Status = core.OrderStatusConcluded
	}
	return nil
}

func (b *fakeBridge) DelivererAssigned(_ context.Context, orderID string, _ map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("DelivererAssigned", orderID)
}

func (b *fakeBridge) DelivererAssignmentFailed(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("DelivererAssignmentFailed", orderID)
}

func (b *fakeBridge) DelivererInTransit(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("DelivererInTransit", orderID)
}

func (b *fakeBridge) OrderDelivered(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("OrderDelivered", orderID)
}

func (b *fakeBridge) AcceptOrderCancellation(_ context.Context, ref core.OrderRef, _ bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("AcceptOrderCancellation", ref.RemoteID)
}

func (b *fakeBridge) DenyOrderCancellation(_ context.Context, ref core.OrderRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.record("DenyOrderCancellation", ref.RemoteID)
}

func (b *fakeBridge) FindByRemoteID(_ context.Context, orderID string) (*core.OrderRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref, ok := b.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *ref
	return &copied, nil
}

func (b *fakeBridge) SetOrderStatus(_ context.Context, ref core.OrderRef, status core.OrderStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record("SetOrderStatus", ref.RemoteID); err != nil {
		return err
	}
	if existing, ok := b.orders[ref.RemoteID]; ok {
		existing.Status = status
	}
	return nil
}

type fakeOrders struct {
	mu      sync.Mutex
	fetched []string
	err     error
}

func (f *fakeOrders) FetchOrder(_ context.Context, merchantID string, orderID string) (core.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, orderID)
	if f.err != nil {
		return core.OrderDetail{}, f.err
	}
	return core.OrderDetail{ID: orderID, MerchantID: merchantID, OrderType: "DELIVERY"}, nil
}

type fakeSource struct {
	mu      sync.Mutex
	events  []core.Event
	pollErr error
	ackErr  error
	polls   int
	acks    [][]string
}

func (s *fakeSource) PollEvents(context.Context, string) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return append([]core.Event(nil), s.events...), nil
}

func (s *fakeSource) AcknowledgeEvents(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, append([]string(nil), ids...))
	return s.ackErr
}

func (s *fakeSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *fakeSource) ackCalls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.acks...)
}

type fakeTokens struct {
	result core.TokenResult
	err    error
}

func (f fakeTokens) GetValidToken(context.Context, string) (core.TokenResult, error) {
	return f.result, f.err
}

func readyTokens() fakeTokens {
	return fakeTokens{result: core.TokenResult{MerchantID: "m-1", Token: "access", Status: core.TokenStatusOK}}
}
