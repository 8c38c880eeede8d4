package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-marketplace/adapters/gocommand"
	"github.com/goliatone/go-marketplace/adapters/gojob"
	"github.com/goliatone/go-marketplace/adapters/gologger"
	promadapter "github.com/goliatone/go-marketplace/adapters/prometheus"
	mcommand "github.com/goliatone/go-marketplace/command"
	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/inbound"
	mquery "github.com/goliatone/go-marketplace/query"
)

func TestRuntimeCompatibility_PollJobDispatchesThroughCommandBus(t *testing.T) {
	ctx := context.Background()

	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}
	jobLogger, jobProvider, bridged := gologger.ResolveForJob(provider, nil)
	if jobLogger == nil || jobProvider == nil || bridged == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	cycle := &compatCycle{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterMarketplace(adapter, mcommand.Handlers{
		PollEvents: mcommand.NewPollEventsCommand(cycle),
	}, mquery.Handlers{})
	if err != nil {
		t.Fatalf("register marketplace handlers: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	enqueuer := &compatQueue{}
	if err := gojob.EnqueuePoll(ctx, enqueuer, "m-1"); err != nil {
		t.Fatalf("enqueue poll: %v", err)
	}

	runner, err := gojob.NewRunner(busCycle{}, gojob.WithLogger(provider, nil))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	delivery := enqueuer.deliver()
	result, err := runner.Process(ctx, delivery)
	if err != nil {
		t.Fatalf("process poll job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery ack after a successful cycle")
	}
	if cycle.calls != 1 || cycle.merchantID != "m-1" {
		t.Fatalf("expected one poll cycle for m-1, got %d (%q)", cycle.calls, cycle.merchantID)
	}
	if len(result.Acknowledged) != 1 || result.Acknowledged[0] != "evt-1" {
		t.Fatalf("expected command result to reach the runner, got %#v", result)
	}
}

func TestRuntimeCompatibility_QueueResolverMirrorsMarketplaceCommands(t *testing.T) {
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(mcommand.NewPollEventsCommand(&compatCycle{})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(mcommand.TypePollEvents); !ok {
		t.Fatalf("expected poll command to be mirrored into the go-job queue registry")
	}
}

func TestRuntimeCompatibility_JobHookFeedsPrometheus(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := promadapter.NewRecorder(registry)
	hook := gojob.NewObservingHook(gologger.ResolveComponent("jobs", nil, nil), recorder)

	message, err := gojob.NewPollMessage("m-1", time.Now(), gojob.DefaultPollWindow)
	if err != nil {
		t.Fatalf("new poll message: %v", err)
	}
	hook.OnSuccess(context.Background(), workerEvent(message))

	count, err := testutil.GatherAndCount(registry, "marketplace_job_poll_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one job_poll series, got %d", count)
	}
}

func workerEvent(message *job.ExecutionMessage) worker.Event {
	return worker.Event{Message: message, Attempt: 1, StartedAt: time.Now()}
}

// busCycle routes the runner's poll through the command dispatcher.
type busCycle struct{}

func (busCycle) Run(ctx context.Context, merchantID string) (inbound.PollResult, error) {
	collector := command.NewResult[inbound.PollResult]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := gocommand.Dispatch(ctx, mcommand.PollEventsMessage{MerchantID: merchantID}); err != nil {
		return inbound.PollResult{}, err
	}
	result, _ := collector.Load()
	return result, nil
}

type compatCycle struct {
	calls      int
	merchantID string
}

func (c *compatCycle) Run(_ context.Context, merchantID string) (inbound.PollResult, error) {
	c.calls++
	c.merchantID = merchantID
	return inbound.PollResult{
		MerchantID:   merchantID,
		Events:       []core.Event{{ID: "evt-1", FullCode: core.EventPlaced}},
		Outcomes:     map[string]inbound.DispatchOutcome{},
		Acknowledged: []string{"evt-1"},
	}, nil
}

type compatQueue struct {
	messages []*job.ExecutionMessage
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.messages = append(q.messages, msg)
	return nil
}

func (q *compatQueue) deliver() *compatDelivery {
	if len(q.messages) == 0 {
		return nil
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &compatDelivery{msg: msg}
}

type compatDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *compatDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.nackOpts = opts
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
