package core

import (
	"strings"
	"time"
)

// Credential is the durable authorization record of one merchant.
// AccessToken and ExpiresAt are either both set or both empty.
type Credential struct {
	MerchantID         string
	ExternalMerchantID string
	MerchantName       string
	UserCode           string
	AuthCodeVerifier   string
	AuthCode           string
	AccessToken        string
	RefreshToken       string
	ExpiresAt          *time.Time
	// Version counts writes to the record, starting at 1 on creation.
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (c Credential) HasToken() bool {
	return strings.TrimSpace(c.AccessToken) != "" && c.ExpiresAt != nil
}

func (c Credential) HasAuthCode() bool {
	return strings.TrimSpace(c.AuthCode) != ""
}

// Ready reports whether the authorization flow reached the point where a
// token can be produced without human action.
func (c Credential) Ready() bool {
	return c.HasToken() || c.HasAuthCode()
}

// TokenSet is the unit persisted by exchange and refresh. Stores write all
// fields or none.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type MerchantProfile struct {
	ExternalMerchantID string
	Name               string
}

type TokenState string

const (
	TokenStateUnauthorized TokenState = "unauthorized"
	TokenStateValid        TokenState = "valid"
	TokenStateRefreshable  TokenState = "refreshable"
	TokenStateExpired      TokenState = "expired"
)

type TokenStatus string

const (
	TokenStatusOK TokenStatus = "ok"
	// TokenStatusExpired is returned when the provider rejected the refresh
	// or exchange; the merchant must re-authorize.
	TokenStatusExpired TokenStatus = "expired"
	// TokenStatusUnavailable accompanies a propagated transient error.
	TokenStatusUnavailable TokenStatus = "unavailable"
)

type TokenResult struct {
	MerchantID string
	Token      string
	ExpiresAt  *time.Time
	Status     TokenStatus
	Refreshed  bool
}

func (r TokenResult) OK() bool {
	return r.Status == TokenStatusOK && strings.TrimSpace(r.Token) != ""
}

type UserCodeResult struct {
	MerchantID              string
	UserCode                string
	VerificationURL         string
	VerificationURLComplete string
	ExpiresAt               *time.Time
}

type TokenStatusReport struct {
	MerchantID string
	State      TokenState
	Ready      bool
	ExpiresAt  *time.Time
}

// EventCode is the fullCode discriminator delivered by the polling endpoint.
type EventCode string

const (
	EventPlaced                EventCode = "PLACED"
	EventConfirmed             EventCode = "CONFIRMED"
	EventCancellationRequested EventCode = "CANCELLATION_REQUESTED"
	EventCancelled             EventCode = "CANCELLED"
	EventConcluded             EventCode = "CONCLUDED"
	EventAssignDriver          EventCode = "ASSIGN_DRIVER"
	EventRequestDriverFailed   EventCode = "REQUEST_DRIVER_FAILED"
	EventCollected             EventCode = "COLLECTED"
	EventDelivered             EventCode = "DELIVERED"
)

type Event struct {
	ID         string         `json:"id"`
	Code       string         `json:"code,omitempty"`
	FullCode   EventCode      `json:"fullCode"`
	OrderID    string         `json:"orderId"`
	MerchantID string         `json:"merchantId,omitempty"`
	CreatedAt  *time.Time     `json:"createdAt,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAccepted   OrderStatus = "accepted"
	OrderStatusCancelling OrderStatus = "cancelling"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusConcluded  OrderStatus = "concluded"
)

// AtLeast reports whether s is at or past target in the forward lifecycle.
func (s OrderStatus) AtLeast(target OrderStatus) bool {
	return orderStatusRank(s) >= orderStatusRank(target)
}

func orderStatusRank(status OrderStatus) int {
	switch status {
	case OrderStatusPending:
		return 0
	case OrderStatusAccepted:
		return 1
	case OrderStatusCancelling:
		return 2
	case OrderStatusCancelled, OrderStatusConcluded:
		return 3
	default:
		return -1
	}
}

// OrderRef is the merchant-side view of a provider order.
type OrderRef struct {
	UUID     string
	RemoteID string
	Status   OrderStatus
}

type OrderDetail struct {
	ID         string
	DisplayID  string
	OrderType  string
	MerchantID string
	CreatedAt  *time.Time
	Raw        map[string]any
}

type CancellationRequester string

const (
	RequestedByCustomer CancellationRequester = "customer"
	RequestedByMerchant CancellationRequester = "merchant"
)

type Interruption struct {
	ID          string
	Description string
	Start       time.Time
	End         time.Time
}

type AvailabilityValidation struct {
	ID      string
	Code    string
	State   string
	Message string
}

type Availability struct {
	Available   bool
	State       string
	Validations []AvailabilityValidation
}
