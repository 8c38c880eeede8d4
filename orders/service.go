package orders

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

// Actions is the order action surface of the merchant API.
type Actions interface {
	ConfirmOrder(ctx context.Context, merchantID string, orderID string) error
	RequestCancellation(ctx context.Context, merchantID string, orderID string, reason string, code string) error
	AcceptCancellation(ctx context.Context, merchantID string, orderID string) error
	DenyCancellation(ctx context.Context, merchantID string, orderID string) error
	ReadyToPickup(ctx context.Context, merchantID string, orderID string) error
	Dispatch(ctx context.Context, merchantID string, orderID string) error
}

type Service struct {
	actions  Actions
	bridge   core.OrderLifecycleBridge
	observer *core.Observer
}

type Option func(*settings)

type settings struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
}

func WithLogger(logger core.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *settings) { s.loggerProvider = provider }
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *settings) { s.metricsRecorder = recorder }
}

func NewService(actions Actions, bridge core.OrderLifecycleBridge, opts ...Option) (*Service, error) {
	if actions == nil {
		return nil, core.DependencyError("order actions")
	}
	if bridge == nil {
		return nil, core.DependencyError("order lifecycle bridge")
	}
	s := settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	logger := core.ResolveLogger("marketplace.orders", s.loggerProvider, s.logger)
	return &Service{
		actions:  actions,
		bridge:   bridge,
		observer: core.NewObserver(logger, s.metricsRecorder),
	}, nil
}

// Confirm accepts the order with the provider and then locally.
func (s *Service) Confirm(ctx context.Context, merchantID string, ref core.OrderRef) error {
	return s.run(ctx, "confirm_order", merchantID, ref, func(orderID string) error {
		if err := s.actions.ConfirmOrder(ctx, merchantID, orderID); err != nil {
			return err
		}
		if err := s.bridge.AcceptOrder(ctx, ref); err != nil {
			return err
		}
		return s.bridge.SetOrderStatus(ctx, ref, core.OrderStatusAccepted)
	})
}

// RequestCancellation cancels on the merchant's behalf. Empty reason or code
// use the configured defaults. The local order moves to cancelling until the
// provider reports CANCELLED.
func (s *Service) RequestCancellation(ctx context.Context, merchantID string, ref core.OrderRef, reason string, code string) error {
	return s.run(ctx, "request_cancellation", merchantID, ref, func(orderID string) error {
		if err := s.actions.RequestCancellation(ctx, merchantID, orderID, reason, code); err != nil {
			return err
		}
		return s.bridge.SetOrderStatus(ctx, ref, core.OrderStatusCancelling)
	})
}

// Reject declines a placed order, which the provider models as a merchant
// cancellation with the default reason.
func (s *Service) Reject(ctx context.Context, merchantID string, ref core.OrderRef) error {
	return s.RequestCancellation(ctx, merchantID, ref, "", "")
}

func (s *Service) AcceptCancellation(ctx context.Context, merchantID string, ref core.OrderRef, returnToStock bool) error {
	return s.run(ctx, "accept_cancellation", merchantID, ref, func(orderID string) error {
		if err := s.actions.AcceptCancellation(ctx, merchantID, orderID); err != nil {
			return err
		}
		return s.bridge.AcceptOrderCancellation(ctx, ref, returnToStock)
	})
}

func (s *Service) DenyCancellation(ctx context.Context, merchantID string, ref core.OrderRef) error {
	return s.run(ctx, "deny_cancellation", merchantID, ref, func(orderID string) error {
		if err := s.actions.DenyCancellation(ctx, merchantID, orderID); err != nil {
			return err
		}
		return s.bridge.DenyOrderCancellation(ctx, ref)
	})
}

// ReadyToPickup notifies pickup and takeout readiness.
func (s *Service) ReadyToPickup(ctx context.Context, merchantID string, ref core.OrderRef) error {
	return s.run(ctx, "ready_to_pickup", merchantID, ref, func(orderID string) error {
		return s.actions.ReadyToPickup(ctx, merchantID, orderID)
	})
}

// Dispatch requests a provider deliverer or reports an own-fleet delivery.
func (s *Service) Dispatch(ctx context.Context, merchantID string, ref core.OrderRef) error {
	return s.run(ctx, "dispatch_order", merchantID, ref, func(orderID string) error {
		return s.actions.Dispatch(ctx, merchantID, orderID)
	})
}

func (s *Service) run(
	ctx context.Context,
	operation string,
	merchantID string,
	ref core.OrderRef,
	fn func(orderID string) error,
) (err error) {
	if s == nil {
		return core.DependencyError("order service")
	}
	startedAt := time.Now()
	orderID := strings.TrimSpace(ref.RemoteID)
	defer func() {
		s.observer.ObserveOperation(ctx, startedAt, operation, err, map[string]any{
			"merchant_id": merchantID,
			"order_id":    orderID,
			"order_uuid":  ref.UUID,
		})
	}()
	if strings.TrimSpace(merchantID) == "" {
		return core.BadInputError("merchant_id", "merchant id is required")
	}
	if orderID == "" {
		return core.BadInputError("remote_id", "order remote id is required")
	}
	return fn(orderID)
}
