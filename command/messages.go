package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

const (
	TypeRequestUserCode = "marketplace.command.auth.user_code"
	TypeStoreAuthCode   = "marketplace.command.auth.store_code"
	TypeRefreshToken    = "marketplace.command.auth.refresh"
	TypePollEvents      = "marketplace.command.events.poll"
	TypePause           = "marketplace.command.merchant.pause"
	TypeUnpause         = "marketplace.command.merchant.unpause"
	TypeOrderAction     = "marketplace.command.order.action"
)

type RequestUserCodeMessage struct {
	MerchantID string
}

func (RequestUserCodeMessage) Type() string { return TypeRequestUserCode }

func (m RequestUserCodeMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

type StoreAuthCodeMessage struct {
	MerchantID string
	AuthCode   string
}

func (StoreAuthCodeMessage) Type() string { return TypeStoreAuthCode }

func (m StoreAuthCodeMessage) Validate() error {
	if err := requireMerchant(m.MerchantID); err != nil {
		return err
	}
	if strings.TrimSpace(m.AuthCode) == "" {
		return commandValidationError("auth_code", "authorization code is required")
	}
	return nil
}

type RefreshTokenMessage struct {
	MerchantID string
}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (m RefreshTokenMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

// PollEventsMessage runs one poll, dispatch and acknowledge cycle.
type PollEventsMessage struct {
	MerchantID string
}

func (PollEventsMessage) Type() string { return TypePollEvents }

func (m PollEventsMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

// PauseMessage opens a manual interruption; a zero Duration uses the
// configured default.
type PauseMessage struct {
	MerchantID string
	Duration   time.Duration
}

func (PauseMessage) Type() string { return TypePause }

func (m PauseMessage) Validate() error {
	if err := requireMerchant(m.MerchantID); err != nil {
		return err
	}
	if m.Duration < 0 {
		return commandValidationError("duration", "duration must not be negative")
	}
	return nil
}

type UnpauseMessage struct {
	MerchantID string
}

func (UnpauseMessage) Type() string { return TypeUnpause }

func (m UnpauseMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

type UnpauseResult struct {
	MerchantID string
	Removed    int
}

type OrderAction string

const (
	OrderActionConfirm             OrderAction = "confirm"
	OrderActionReject              OrderAction = "reject"
	OrderActionRequestCancellation OrderAction = "request_cancellation"
	OrderActionAcceptCancellation  OrderAction = "accept_cancellation"
	OrderActionDenyCancellation    OrderAction = "deny_cancellation"
	OrderActionReadyToPickup       OrderAction = "ready_to_pickup"
	OrderActionDispatch            OrderAction = "dispatch"
)

func (a OrderAction) valid() bool {
	switch a {
	case OrderActionConfirm,
		OrderActionReject,
		OrderActionRequestCancellation,
		OrderActionAcceptCancellation,
		OrderActionDenyCancellation,
		OrderActionReadyToPickup,
		OrderActionDispatch:
		return true
	default:
		return false
	}
}

// OrderActionMessage carries a merchant-initiated order transition. Reason
// and Code apply to request_cancellation; ReturnToStock to
// accept_cancellation.
type OrderActionMessage struct {
	MerchantID    string
	Action        OrderAction
	Order         core.OrderRef
	Reason        string
	Code          string
	ReturnToStock bool
}

func (OrderActionMessage) Type() string { return TypeOrderAction }

func (m OrderActionMessage) Validate() error {
	if err := requireMerchant(m.MerchantID); err != nil {
		return err
	}
	if !m.Action.valid() {
		return commandValidationError("action", "unsupported order action")
	}
	if strings.TrimSpace(m.Order.RemoteID) == "" {
		return commandValidationError("order.remote_id", "order remote id is required")
	}
	return nil
}

func requireMerchant(merchantID string) error {
	if strings.TrimSpace(merchantID) == "" {
		return commandValidationError("merchant_id", "merchant id is required")
	}
	return nil
}
