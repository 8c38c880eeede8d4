package inbound

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketplace/core"
)

// DispatchOutcome reports how an event was handled. Every outcome counts as
// handled for acknowledgment purposes.
type DispatchOutcome string

const (
	OutcomeApplied        DispatchOutcome = "applied"
	OutcomeAlreadyApplied DispatchOutcome = "already_applied"
	OutcomeIgnored        DispatchOutcome = "ignored"
	OutcomeSkipped        DispatchOutcome = "skipped"
)

// OrderFetcher loads the full provider view of an order.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, merchantID string, orderID string) (core.OrderDetail, error)
}

// Dispatcher maps each event fullCode to one OrderLifecycleBridge action.
type Dispatcher struct {
	bridge     core.OrderLifecycleBridge
	orders     OrderFetcher
	ledger     core.EventLedger
	claimLease time.Duration
	observer   *core.Observer
}

func NewDispatcher(bridge core.OrderLifecycleBridge, orders OrderFetcher, opts ...Option) (*Dispatcher, error) {
	if bridge == nil {
		return nil, core.DependencyError("order lifecycle bridge")
	}
	if orders == nil {
		return nil, core.DependencyError("order fetcher")
	}
	s := resolveOptions(opts)
	return &Dispatcher{
		bridge:     bridge,
		orders:     orders,
		ledger:     s.ledger,
		claimLease: s.claimLease,
		observer:   s.observer("marketplace.dispatcher"),
	}, nil
}

// Dispatch applies one event. A returned error means the event was not
// handled and its batch must stay unacknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, merchantID string, event core.Event) (outcome DispatchOutcome, err error) {
	if d == nil {
		return "", inboundInternal("inbound: dispatcher is nil", nil)
	}
	startedAt := time.Now()
	merchantID = strings.TrimSpace(merchantID)
	fields := map[string]any{
		"merchant_id": merchantID,
		"event_id":    event.ID,
		"event_code":  string(event.FullCode),
		"order_id":    event.OrderID,
	}
	defer func() {
		if outcome != "" {
			fields["outcome"] = string(outcome)
		}
		d.observer.ObserveOperation(ctx, startedAt, "dispatch_event", err, fields)
	}()

	if merchantID == "" {
		return "", inboundBadInput("inbound: merchant id is required", nil)
	}
	if !knownCode(event.FullCode) {
		d.observer.Log(ctx, "warn", "ignoring unknown event code", fields)
		return OutcomeIgnored, nil
	}
	if strings.TrimSpace(event.OrderID) == "" {
		// redelivery would carry the same empty id, so holding the batch
		// back cannot help
		d.observer.Log(ctx, "warn", "skipping event without order id", fields)
		return OutcomeSkipped, nil
	}

	claimID := ""
	if d.ledger != nil && strings.TrimSpace(event.ID) != "" {
		var accepted bool
		claimID, accepted, err = d.ledger.Claim(ctx, EventKey(merchantID, event.ID), d.claimLease)
		if err != nil {
			if errors.Is(err, core.ErrClaimInFlight) {
				return "", inboundWrapError(
					err,
					goerrors.CategoryConflict,
					"inbound: event is being processed by another attempt",
					http.StatusConflict,
					core.ErrorPollInProgress,
					map[string]any{"event_id": event.ID},
				)
			}
			return "", ledgerError(err, "inbound: claim event", map[string]any{"event_id": event.ID})
		}
		if !accepted {
			return OutcomeAlreadyApplied, nil
		}
	}

	outcome, err = d.apply(ctx, merchantID, event)
	if claimID == "" {
		return outcome, err
	}
	if err != nil {
		if failErr := d.ledger.Fail(ctx, claimID, err); failErr != nil {
			return "", errors.Join(err, ledgerError(failErr, "inbound: mark event claim failed", map[string]any{
				"event_id": event.ID,
				"claim_id": claimID,
			}))
		}
		return "", err
	}
	if completeErr := d.ledger.Complete(ctx, claimID); completeErr != nil {
		return "", ledgerError(completeErr, "inbound: complete event claim", map[string]any{
			"event_id": event.ID,
			"claim_id": claimID,
		})
	}
	return outcome, nil
}

func (d *Dispatcher) apply(ctx context.Context, merchantID string, event core.Event) (DispatchOutcome, error) {
	orderID := strings.TrimSpace(event.OrderID)
	switch event.FullCode {
	case core.EventPlaced:
		return d.placed(ctx, merchantID, orderID)
	case core.EventConfirmed:
		return d.confirmed(ctx, merchantID, event.ID, orderID)
	case core.EventCancellationRequested:
		ref, err := d.bridge.FindByRemoteID(ctx, orderID)
		if err != nil {
			return "", err
		}
		if ref == nil {
			d.observer.Log(ctx, "warn", "cancellation requested for unknown order", map[string]any{
				"merchant_id": merchantID,
				"order_id":    orderID,
			})
			return OutcomeSkipped, nil
		}
		if err := d.bridge.RequestOrderCancellation(ctx, *ref, core.RequestedByCustomer); err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	case core.EventCancelled:
		return d.toTerminal(ctx, orderID, core.OrderStatusCancelled, d.bridge.CancelOrder)
	case core.EventConcluded:
		return d.toTerminal(ctx, orderID, core.OrderStatusConcluded, d.bridge.FinishOrder)
	case core.EventAssignDriver:
		return applied(d.bridge.DelivererAssigned(ctx, orderID, event.Metadata))
	case core.EventRequestDriverFailed:
		return applied(d.bridge.DelivererAssignmentFailed(ctx, orderID))
	case core.EventCollected:
		return applied(d.bridge.DelivererInTransit(ctx, orderID))
	case core.EventDelivered:
		return applied(d.bridge.OrderDelivered(ctx, orderID))
	default:
		return OutcomeIgnored, nil
	}
}

func (d *Dispatcher) placed(ctx context.Context, merchantID string, orderID string) (DispatchOutcome, error) {
	existing, err := d.bridge.FindByRemoteID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return OutcomeAlreadyApplied, nil
	}
	if _, err := d.create(ctx, merchantID, orderID); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func (d *Dispatcher) confirmed(ctx context.Context, merchantID string, eventID string, orderID string) (DispatchOutcome, error) {
	ref, err := d.bridge.FindByRemoteID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if ref == nil {
		created, err := d.create(ctx, merchantID, orderID)
		if err != nil {
			return "", err
		}
		ref = &created
	}
	if ref.Status != "" && ref.Status != core.OrderStatusPending {
		return OutcomeAlreadyApplied, nil
	}
	accepted := *ref
	if err := d.once(ctx, merchantID, eventID, "accept", func() error {
		return d.bridge.AcceptOrder(ctx, accepted)
	}); err != nil {
		return "", err
	}
	if err := d.bridge.SetOrderStatus(ctx, accepted, core.OrderStatusAccepted); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// once runs action at most one time per event and step. When a later step
// of the same event fails, the redelivered event skips the recorded step.
func (d *Dispatcher) once(ctx context.Context, merchantID string, eventID string, step string, action func() error) error {
	if d.ledger == nil || strings.TrimSpace(eventID) == "" {
		return action()
	}
	metadata := map[string]any{"event_id": eventID, "step": step}
	claimID, accepted, err := d.ledger.Claim(ctx, StepKey(merchantID, eventID, step), d.claimLease)
	if err != nil {
		return ledgerError(err, "inbound: claim event step", metadata)
	}
	if !accepted {
		return nil
	}
	if err := action(); err != nil {
		if failErr := d.ledger.Fail(ctx, claimID, err); failErr != nil {
			return errors.Join(err, ledgerError(failErr, "inbound: mark event step failed", metadata))
		}
		return err
	}
	if err := d.ledger.Complete(ctx, claimID); err != nil {
		return ledgerError(err, "inbound: complete event step", metadata)
	}
	return nil
}

func (d *Dispatcher) create(ctx context.Context, merchantID string, orderID string) (core.OrderRef, error) {
	detail, err := d.orders.FetchOrder(ctx, merchantID, orderID)
	if err != nil {
		return core.OrderRef{}, err
	}
	if strings.TrimSpace(detail.ID) == "" {
		detail.ID = orderID
	}
	ref, err := d.bridge.CreateOrder(ctx, merchantID, detail)
	if err != nil {
		return core.OrderRef{}, err
	}
	if ref.RemoteID == "" {
		ref.RemoteID = orderID
	}
	if ref.Status == "" {
		ref.Status = core.OrderStatusPending
	}
	return ref, nil
}

func (d *Dispatcher) toTerminal(
	ctx context.Context,
	orderID string,
	target core.OrderStatus,
	action func(context.Context, string) error,
) (DispatchOutcome, error) {
	ref, err := d.bridge.FindByRemoteID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if ref != nil && ref.Status == target {
		return OutcomeAlreadyApplied, nil
	}
	return applied(action(ctx, orderID))
}

func applied(err error) (DispatchOutcome, error) {
	if err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

func knownCode(code core.EventCode) bool {
	switch code {
	case core.EventPlaced,
		core.EventConfirmed,
		core.EventCancellationRequested,
		core.EventCancelled,
		core.EventConcluded,
		core.EventAssignDriver,
		core.EventRequestDriverFailed,
		core.EventCollected,
		core.EventDelivered:
		return true
	default:
		return false
	}
}
