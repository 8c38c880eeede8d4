package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	mcommand "github.com/goliatone/go-marketplace/command"
	"github.com/goliatone/go-marketplace/core"
	mquery "github.com/goliatone/go-marketplace/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "marketplace.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "marketplace.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "marketplace.command.test" }

type queueMessage struct{}

func (queueMessage) Type() string { return "marketplace.command.queue" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("marketplace.command.queue"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestRegisterMarketplace_DispatchesCommandsAndQueries(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	auth := &stubAuthorizer{}
	tokens := &stubTokenStatus{}

	commands := mcommand.Handlers{RefreshToken: mcommand.NewRefreshTokenCommand(auth)}
	queries := mquery.Handlers{TokenStatus: mquery.NewTokenStatusQuery(tokens)}

	subscriptions, err := RegisterMarketplace(adapter, commands, queries)
	if err != nil {
		t.Fatalf("register marketplace: %v", err)
	}
	t.Cleanup(subscriptions.Unsubscribe)
	if len(subscriptions) != 2 {
		t.Fatalf("expected only configured handlers to subscribe, got %d", len(subscriptions))
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if err := Dispatch(context.Background(), mcommand.RefreshTokenMessage{MerchantID: "m-1"}); err != nil {
		t.Fatalf("dispatch refresh: %v", err)
	}
	if len(auth.refreshed) != 1 || auth.refreshed[0] != "m-1" {
		t.Fatalf("expected refresh for m-1, got %v", auth.refreshed)
	}

	report, err := Query[mquery.TokenStatusMessage, core.TokenStatusReport](context.Background(), mquery.TokenStatusMessage{MerchantID: "m-1"})
	if err != nil {
		t.Fatalf("query token status: %v", err)
	}
	if report.MerchantID != "m-1" || report.State != core.TokenStateValid {
		t.Fatalf("unexpected report %#v", report)
	}
}

func TestRegisterMarketplace_RequiresRegistry(t *testing.T) {
	if _, err := RegisterMarketplace(nil, mcommand.Handlers{}, mquery.Handlers{}); err == nil {
		t.Fatalf("expected missing registry to fail")
	}
}

type stubAuthorizer struct {
	refreshed []string
}

func (s *stubAuthorizer) RequestUserCode(context.Context, string) (core.UserCodeResult, error) {
	return core.UserCodeResult{}, nil
}

func (s *stubAuthorizer) StoreAuthCode(context.Context, string, string) error {
	return nil
}

func (s *stubAuthorizer) Refresh(_ context.Context, merchantID string) (core.TokenResult, error) {
	s.refreshed = append(s.refreshed, merchantID)
	return core.TokenResult{}, nil
}

type stubTokenStatus struct{}

func (stubTokenStatus) Status(_ context.Context, merchantID string) (core.TokenStatusReport, error) {
	return core.TokenStatusReport{MerchantID: merchantID, State: core.TokenStateValid, Ready: true}, nil
}
