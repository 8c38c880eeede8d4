package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/inbound"
)

// Authorizer is the token side of the integration.
type Authorizer interface {
	RequestUserCode(ctx context.Context, merchantID string) (core.UserCodeResult, error)
	StoreAuthCode(ctx context.Context, merchantID string, authCode string) error
	Refresh(ctx context.Context, merchantID string) (core.TokenResult, error)
}

type EventCycle interface {
	Run(ctx context.Context, merchantID string) (inbound.PollResult, error)
}

type MerchantStatus interface {
	Pause(ctx context.Context, merchantID string, duration time.Duration) (core.Interruption, error)
	Unpause(ctx context.Context, merchantID string) (int, error)
}

type OrderService interface {
	Confirm(ctx context.Context, merchantID string, ref core.OrderRef) error
	Reject(ctx context.Context, merchantID string, ref core.OrderRef) error
	RequestCancellation(ctx context.Context, merchantID string, ref core.OrderRef, reason string, code string) error
	AcceptCancellation(ctx context.Context, merchantID string, ref core.OrderRef, returnToStock bool) error
	DenyCancellation(ctx context.Context, merchantID string, ref core.OrderRef) error
	ReadyToPickup(ctx context.Context, merchantID string, ref core.OrderRef) error
	Dispatch(ctx context.Context, merchantID string, ref core.OrderRef) error
}

type RequestUserCodeCommand struct {
	auth Authorizer
}

func NewRequestUserCodeCommand(auth Authorizer) *RequestUserCodeCommand {
	return &RequestUserCodeCommand{auth: auth}
}

func (c *RequestUserCodeCommand) Execute(ctx context.Context, msg RequestUserCodeMessage) error {
	if c == nil || c.auth == nil {
		return commandDependencyError("command: token manager is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.auth.RequestUserCode(ctx, msg.MerchantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type StoreAuthCodeCommand struct {
	auth Authorizer
}

func NewStoreAuthCodeCommand(auth Authorizer) *StoreAuthCodeCommand {
	return &StoreAuthCodeCommand{auth: auth}
}

func (c *StoreAuthCodeCommand) Execute(ctx context.Context, msg StoreAuthCodeMessage) error {
	if c == nil || c.auth == nil {
		return commandDependencyError("command: token manager is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.auth.StoreAuthCode(ctx, msg.MerchantID, msg.AuthCode)
}

// RefreshTokenCommand stores the TokenResult; an expired status is a
// result, not an error.
type RefreshTokenCommand struct {
	auth Authorizer
}

func NewRefreshTokenCommand(auth Authorizer) *RefreshTokenCommand {
	return &RefreshTokenCommand{auth: auth}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, msg RefreshTokenMessage) error {
	if c == nil || c.auth == nil {
		return commandDependencyError("command: token manager is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.auth.Refresh(ctx, msg.MerchantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PollEventsCommand struct {
	cycle EventCycle
}

func NewPollEventsCommand(cycle EventCycle) *PollEventsCommand {
	return &PollEventsCommand{cycle: cycle}
}

func (c *PollEventsCommand) Execute(ctx context.Context, msg PollEventsMessage) error {
	if c == nil || c.cycle == nil {
		return commandDependencyError("command: event poller is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.cycle.Run(ctx, msg.MerchantID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PauseCommand struct {
	merchants MerchantStatus
}

func NewPauseCommand(merchants MerchantStatus) *PauseCommand {
	return &PauseCommand{merchants: merchants}
}

func (c *PauseCommand) Execute(ctx context.Context, msg PauseMessage) error {
	if c == nil || c.merchants == nil {
		return commandDependencyError("command: merchant client is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.merchants.Pause(ctx, msg.MerchantID, msg.Duration)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UnpauseCommand struct {
	merchants MerchantStatus
}

func NewUnpauseCommand(merchants MerchantStatus) *UnpauseCommand {
	return &UnpauseCommand{merchants: merchants}
}

func (c *UnpauseCommand) Execute(ctx context.Context, msg UnpauseMessage) error {
	if c == nil || c.merchants == nil {
		return commandDependencyError("command: merchant client is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	removed, err := c.merchants.Unpause(ctx, msg.MerchantID)
	// a partial unpause still reports how many interruptions were removed
	storeResult(ctx, UnpauseResult{MerchantID: msg.MerchantID, Removed: removed})
	return err
}

type OrderActionCommand struct {
	orders OrderService
}

func NewOrderActionCommand(orders OrderService) *OrderActionCommand {
	return &OrderActionCommand{orders: orders}
}

func (c *OrderActionCommand) Execute(ctx context.Context, msg OrderActionMessage) error {
	if c == nil || c.orders == nil {
		return commandDependencyError("command: order service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	switch msg.Action {
	case OrderActionConfirm:
		return c.orders.Confirm(ctx, msg.MerchantID, msg.Order)
	case OrderActionReject:
		return c.orders.Reject(ctx, msg.MerchantID, msg.Order)
	case OrderActionRequestCancellation:
		return c.orders.RequestCancellation(ctx, msg.MerchantID, msg.Order, msg.Reason, msg.Code)
	case OrderActionAcceptCancellation:
		return c.orders.AcceptCancellation(ctx, msg.MerchantID, msg.Order, msg.ReturnToStock)
	case OrderActionDenyCancellation:
		return c.orders.DenyCancellation(ctx, msg.MerchantID, msg.Order)
	case OrderActionReadyToPickup:
		return c.orders.ReadyToPickup(ctx, msg.MerchantID, msg.Order)
	default:
		return c.orders.Dispatch(ctx, msg.MerchantID, msg.Order)
	}
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

// Handlers groups every marketplace command.
type Handlers struct {
	RequestUserCode *RequestUserCodeCommand
	StoreAuthCode   *StoreAuthCodeCommand
	RefreshToken    *RefreshTokenCommand
	PollEvents      *PollEventsCommand
	Pause           *PauseCommand
	Unpause         *UnpauseCommand
	OrderAction     *OrderActionCommand
}

func NewHandlers(auth Authorizer, cycle EventCycle, merchants MerchantStatus, orders OrderService) Handlers {
	return Handlers{
		RequestUserCode: NewRequestUserCodeCommand(auth),
		StoreAuthCode:   NewStoreAuthCodeCommand(auth),
		RefreshToken:    NewRefreshTokenCommand(auth),
		PollEvents:      NewPollEventsCommand(cycle),
		Pause:           NewPauseCommand(merchants),
		Unpause:         NewUnpauseCommand(merchants),
		OrderAction:     NewOrderActionCommand(orders),
	}
}
