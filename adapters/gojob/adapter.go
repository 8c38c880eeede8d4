package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/inbound"
)

const (
	JobIDPoll = "marketplace.events.poll"

	ParamMerchantID = "merchant_id"

	// DefaultPollWindow matches the provider's recommended polling cadence.
	// Polls enqueued inside the same window share an idempotency key.
	DefaultPollWindow = 30 * time.Second
)

// RetryPolicy bounds how a failed poll delivery is retried.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       5 * time.Second,
		MaxDelay:        2 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// Backoff doubles BaseDelay for every attempt after the first, capped at
// MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewPollMessage builds the execution message for one poll cycle of a
// merchant.
func NewPollMessage(merchantID string, at time.Time, window time.Duration) (*job.ExecutionMessage, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return nil, core.BadInputError(ParamMerchantID, "merchant id is required")
	}
	if window <= 0 {
		window = DefaultPollWindow
	}
	slot := at.UTC().Truncate(window).Unix()
	return &job.ExecutionMessage{
		JobID:          JobIDPoll,
		ScriptPath:     JobIDPoll,
		Parameters:     map[string]any{ParamMerchantID: merchantID},
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", JobIDPoll, merchantID, slot),
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}, nil
}

// EnqueuePoll schedules a poll cycle for merchantID.
func EnqueuePoll(ctx context.Context, enqueuer queue.Enqueuer, merchantID string) error {
	if enqueuer == nil {
		return core.DependencyError("job enqueuer")
	}
	msg, err := NewPollMessage(merchantID, time.Now(), DefaultPollWindow)
	if err != nil {
		return err
	}
	return enqueuer.Enqueue(ctx, msg)
}

// MerchantIDFromMessage extracts the merchant a poll job targets.
func MerchantIDFromMessage(msg *job.ExecutionMessage) (string, error) {
	if msg == nil {
		return "", core.BadInputError("message", "execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDPoll {
		return "", core.BadInputError("job_id", fmt.Sprintf("unsupported job %q", msg.JobID))
	}
	raw, ok := msg.Parameters[ParamMerchantID]
	if !ok {
		return "", core.BadInputError(ParamMerchantID, "merchant id is required")
	}
	merchantID, ok := raw.(string)
	if !ok || strings.TrimSpace(merchantID) == "" {
		return "", core.BadInputError(ParamMerchantID, "merchant id must be a non-empty string")
	}
	return strings.TrimSpace(merchantID), nil
}

type PollCycle interface {
	Run(ctx context.Context, merchantID string) (inbound.PollResult, error)
}

type RunnerOption func(*Runner)

func WithRetryPolicy(policy RetryPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = policy
	}
}

func WithLogger(provider glog.LoggerProvider, logger glog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = core.ResolveLogger("marketplace.jobs", provider, logger)
	}
}

// Runner executes poll deliveries pulled from a go-job queue.
type Runner struct {
	cycle  PollCycle
	policy RetryPolicy
	logger glog.Logger
}

func NewRunner(cycle PollCycle, opts ...RunnerOption) (*Runner, error) {
	if cycle == nil {
		return nil, core.DependencyError("poll cycle")
	}
	runner := &Runner{
		cycle:  cycle,
		policy: DefaultRetryPolicy(),
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner, nil
}

// Process runs a first delivery attempt.
func (r *Runner) Process(ctx context.Context, delivery queue.Delivery) (inbound.PollResult, error) {
	return r.ProcessAttempt(ctx, delivery, 1)
}

// ProcessAttempt runs one poll cycle for the delivery and settles it: ack on
// success, nack with backoff on retryable failures, dead letter otherwise.
// The returned error is the cycle error; settlement errors are joined to it.
func (r *Runner) ProcessAttempt(ctx context.Context, delivery queue.Delivery, attempt int) (inbound.PollResult, error) {
	if r == nil || r.cycle == nil {
		return inbound.PollResult{}, core.DependencyError("poll runner")
	}
	if delivery == nil {
		return inbound.PollResult{}, core.DependencyError("job delivery")
	}

	merchantID, err := MerchantIDFromMessage(delivery.Message())
	if err != nil {
		r.logger.Warn("dead-lettering malformed poll job", "error", err.Error())
		return inbound.PollResult{}, settle(err, delivery.Nack(ctx, r.policy.NormalizeAttempt(queue.NackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}, attempt)))
	}

	result, err := r.cycle.Run(ctx, merchantID)
	if err == nil {
		return result, delivery.Ack(ctx)
	}

	opts := queue.NackOptions{Reason: err.Error()}
	if Retryable(err) {
		opts.Requeue = true
		opts.Delay = r.policy.Backoff(attempt)
	} else {
		opts.DeadLetter = true
	}
	opts = r.policy.NormalizeAttempt(opts, attempt)
	r.logger.Warn("poll job failed",
		"merchant_id", merchantID,
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"delay", opts.Delay.String(),
		"error", err.Error(),
	)
	return result, settle(err, delivery.Nack(ctx, opts))
}

// Retryable reports whether a later attempt of the same poll can succeed
// without operator action.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if core.KindOf(err).Retryable() {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == core.ErrorPollInProgress || richErr.Category == goerrors.CategoryConflict
	}
	return false
}

func settle(cause error, settleErr error) error {
	if settleErr == nil {
		return cause
	}
	return fmt.Errorf("%w (settle delivery: %v)", cause, settleErr)
}

// ObservingHook reports worker lifecycle events through the marketplace
// observer.
type ObservingHook struct {
	observer *core.Observer
}

func NewObservingHook(logger glog.Logger, metrics core.MetricsRecorder) *ObservingHook {
	return &ObservingHook{observer: core.NewObserver(logger, metrics)}
}

func (h *ObservingHook) OnStart(ctx context.Context, event worker.Event) {
	h.count(ctx, "start", event)
}

func (h *ObservingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.ObserveOperation(ctx, startedAt(event), "job_poll", nil, eventFields(event))
}

func (h *ObservingHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.ObserveOperation(ctx, startedAt(event), "job_poll", event.Err, eventFields(event))
}

func (h *ObservingHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.count(ctx, "retry", event)
	fields := eventFields(event)
	fields["delay"] = event.Delay.String()
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	h.observer.Log(ctx, "warn", "poll job scheduled for retry", fields)
}

func (h *ObservingHook) count(ctx context.Context, stage string, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.Count(ctx, "job_poll."+stage, 1, map[string]string{
		"job_id": messageJobID(event),
	})
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{
		"job_id":  messageJobID(event),
		"attempt": event.Attempt,
	}
	if message := eventMessage(event); message != nil {
		if merchantID, ok := message.Parameters[ParamMerchantID].(string); ok {
			fields[ParamMerchantID] = merchantID
		}
	}
	return fields
}

func startedAt(event worker.Event) time.Time {
	if event.StartedAt.IsZero() {
		return time.Now()
	}
	return event.StartedAt
}

func eventMessage(event worker.Event) *job.ExecutionMessage {
	if event.Message != nil {
		return event.Message
	}
	if event.Delivery != nil {
		return event.Delivery.Message()
	}
	return nil
}

func messageJobID(event worker.Event) string {
	if message := eventMessage(event); message != nil {
		return strings.TrimSpace(message.JobID)
	}
	return ""
}

var _ worker.Hook = (*ObservingHook)(nil)
