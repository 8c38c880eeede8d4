package inbound

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

// EventSource is the polling surface of the merchant API.
type EventSource interface {
	PollEvents(ctx context.Context, merchantID string) ([]core.Event, error)
	AcknowledgeEvents(ctx context.Context, merchantID string, eventIDs []string) error
}

const (
	SkipNotReady     = "not_ready"
	SkipTokenExpired = "token_expired"
)

// PollResult summarises one poll cycle.
type PollResult struct {
	MerchantID   string
	Events       []core.Event
	Outcomes     map[string]DispatchOutcome
	Acknowledged []string
	// Skipped names why the cycle made no provider call.
	Skipped string
}

// Poller runs fetch, dispatch and acknowledgment for one merchant at a time.
type Poller struct {
	source     EventSource
	tokens     core.TokenSource
	dispatcher *Dispatcher
	locker     core.Locker
	lockTTL    time.Duration
	observer   *core.Observer
}

func NewPoller(source EventSource, tokens core.TokenSource, dispatcher *Dispatcher, opts ...Option) (*Poller, error) {
	if source == nil {
		return nil, core.DependencyError("event source")
	}
	if tokens == nil {
		return nil, core.DependencyError("token source")
	}
	if dispatcher == nil {
		return nil, core.DependencyError("event dispatcher")
	}
	s := resolveOptions(opts)
	return &Poller{
		source:     source,
		tokens:     tokens,
		dispatcher: dispatcher,
		locker:     s.locker,
		lockTTL:    s.lockTTL,
		observer:   s.observer("marketplace.poller"),
	}, nil
}

// Poll fetches the pending batch. A merchant without a usable token yields
// an empty batch and no error.
func (p *Poller) Poll(ctx context.Context, merchantID string) ([]core.Event, error) {
	events, _, err := p.poll(ctx, strings.TrimSpace(merchantID))
	return events, err
}

// Acknowledge confirms the whole batch in one call. An empty batch makes no
// call.
func (p *Poller) Acknowledge(ctx context.Context, merchantID string, events []core.Event) (err error) {
	if p == nil {
		return inboundInternal("inbound: poller is nil", nil)
	}
	ids := eventIDs(events)
	if len(ids) == 0 {
		return nil
	}
	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "acknowledge_events", err, map[string]any{
			"merchant_id": merchantID,
			"event_count": len(ids),
		})
	}()
	return p.source.AcknowledgeEvents(ctx, strings.TrimSpace(merchantID), ids)
}

// Run executes one full cycle. Events are dispatched in order; the first
// dispatch failure ends the cycle without acknowledging anything.
func (p *Poller) Run(ctx context.Context, merchantID string) (result PollResult, err error) {
	if p == nil {
		return PollResult{}, inboundInternal("inbound: poller is nil", nil)
	}
	merchantID = strings.TrimSpace(merchantID)
	result = PollResult{MerchantID: merchantID, Outcomes: map[string]DispatchOutcome{}}
	if merchantID == "" {
		return result, inboundBadInput("inbound: merchant id is required", nil)
	}

	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "poll_cycle", err, map[string]any{
			"merchant_id":  merchantID,
			"event_count":  len(result.Events),
			"acknowledged": len(result.Acknowledged),
			"skipped":      result.Skipped,
		})
	}()

	handle, err := p.locker.TryAcquire(ctx, core.PollLockKey(merchantID), p.lockTTL)
	if err != nil {
		if errors.Is(err, core.ErrLockHeld) {
			return result, core.PollInProgressError(merchantID)
		}
		return result, core.InternalError(err, "inbound: acquire poll lock")
	}
	defer func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}()
	ctx, release := p.holdLease(ctx, handle, merchantID)
	defer release()

	events, skipped, err := p.poll(ctx, merchantID)
	result.Events = events
	result.Skipped = skipped
	if err != nil || skipped != "" {
		return result, err
	}

	for _, event := range events {
		outcome, dispatchErr := p.dispatcher.Dispatch(ctx, merchantID, event)
		if dispatchErr != nil {
			p.observer.Log(ctx, "error", "event dispatch failed; batch left unacknowledged", map[string]any{
				"merchant_id": merchantID,
				"event_id":    event.ID,
				"event_code":  string(event.FullCode),
				"error":       dispatchErr.Error(),
			})
			return result, dispatchErr
		}
		result.Outcomes[event.ID] = outcome
	}

	// another cycle may own the merchant now; the next batch it fetches
	// carries these events again
	if cause := context.Cause(ctx); cause != nil {
		return result, cause
	}
	if err := p.Acknowledge(ctx, merchantID, events); err != nil {
		return result, err
	}
	result.Acknowledged = eventIDs(events)
	return result, nil
}

// holdLease renews the poll lease every third of its TTL until release is
// called. A lease taken over by another holder cancels the returned context.
func (p *Poller) holdLease(ctx context.Context, handle core.LockHandle, merchantID string) (context.Context, func()) {
	extender, ok := handle.(core.LeaseExtender)
	if !ok {
		return ctx, func() {}
	}
	cycleCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(max(p.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-cycleCtx.Done():
				return
			case <-ticker.C:
			}
			err := extender.Extend(cycleCtx, p.lockTTL)
			if err == nil {
				continue
			}
			fields := map[string]any{"merchant_id": merchantID, "error": err.Error()}
			if errors.Is(err, core.ErrLockLost) {
				p.observer.Log(cycleCtx, "error", "poll lease lost; abandoning cycle", fields)
				cancel(core.InternalError(err, "inbound: poll lease lost"))
				return
			}
			p.observer.Log(cycleCtx, "warn", "poll lease renewal failed", fields)
		}
	}()
	return cycleCtx, func() {
		close(stop)
		<-stopped
		cancel(nil)
	}
}

func (p *Poller) poll(ctx context.Context, merchantID string) (events []core.Event, skipped string, err error) {
	if p == nil {
		return nil, "", inboundInternal("inbound: poller is nil", nil)
	}
	if merchantID == "" {
		return nil, "", inboundBadInput("inbound: merchant id is required", nil)
	}
	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "poll_events", err, map[string]any{
			"merchant_id": merchantID,
			"event_count": len(events),
			"skipped":     skipped,
		})
	}()

	token, err := p.tokens.GetValidToken(ctx, merchantID)
	if err != nil {
		if core.IsKind(err, core.KindNotReady) {
			p.observer.Log(ctx, "warn", "merchant not ready; skipping poll", map[string]any{"merchant_id": merchantID})
			return []core.Event{}, SkipNotReady, nil
		}
		return nil, "", err
	}
	if !token.OK() {
		p.observer.Log(ctx, "warn", "token expired; skipping poll", map[string]any{"merchant_id": merchantID})
		return []core.Event{}, SkipTokenExpired, nil
	}

	events, err = p.source.PollEvents(ctx, merchantID)
	if err != nil {
		// a token that expired between the check and the call behaves like
		// the check itself
		if core.IsKind(err, core.KindNotReady) {
			return []core.Event{}, SkipTokenExpired, nil
		}
		return nil, "", err
	}
	if events == nil {
		events = []core.Event{}
	}
	return events, "", nil
}

func eventIDs(events []core.Event) []string {
	ids := make([]string, 0, len(events))
	for _, event := range events {
		if id := strings.TrimSpace(event.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
