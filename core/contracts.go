package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// CredentialStore persists one Credential per merchant. Get returns
// ErrCredentialNotFound when no record exists.
type CredentialStore interface {
	Get(ctx context.Context, merchantID string) (Credential, error)
	SaveUserCode(ctx context.Context, merchantID string, userCode string, verifier string) (Credential, error)
	SaveAuthCode(ctx context.Context, merchantID string, authCode string) (Credential, error)
	SaveTokens(ctx context.Context, merchantID string, tokens TokenSet) (Credential, error)
	SaveMerchantProfile(ctx context.Context, merchantID string, profile MerchantProfile) (Credential, error)
}

// FreshCredentialReader is implemented by stores that keep a cached copy in
// front of the system of record. GetFresh skips the cached copy.
type FreshCredentialReader interface {
	GetFresh(ctx context.Context, merchantID string) (Credential, error)
}

type DeviceCode struct {
	UserCode                string
	AuthCodeVerifier        string
	VerificationURL         string
	VerificationURLComplete string
	ExpiresIn               time.Duration
}

// AuthProvider is the provider side of the device-code grant. Implementations
// classify failures into the error taxonomy.
type AuthProvider interface {
	RequestUserCode(ctx context.Context) (DeviceCode, error)
	ExchangeCode(ctx context.Context, authCode string, verifier string) (TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenSet, error)
}

// TokenSource hands out bearer tokens for a merchant.
type TokenSource interface {
	GetValidToken(ctx context.Context, merchantID string) (TokenResult, error)
}

// OrderLifecycleBridge is the merchant-side order system.
type OrderLifecycleBridge interface {
	CreateOrder(ctx context.Context, merchantID string, detail OrderDetail) (OrderRef, error)
	AcceptOrder(ctx context.Context, ref OrderRef) error
	RequestOrderCancellation(ctx context.Context, ref OrderRef, requestedBy CancellationRequester) error
	CancelOrder(ctx context.Context, orderID string) error
	FinishOrder(ctx context.Context, orderID string) error
	DelivererAssigned(ctx context.Context, orderID string, metadata map[string]any) error
	DelivererAssignmentFailed(ctx context.Context, orderID string) error
	DelivererInTransit(ctx context.Context, orderID string) error
	OrderDelivered(ctx context.Context, orderID string) error
	AcceptOrderCancellation(ctx context.Context, ref OrderRef, returnToStock bool) error
	DenyOrderCancellation(ctx context.Context, ref OrderRef) error
	// FindByRemoteID returns nil and no error when the order is unknown.
	FindByRemoteID(ctx context.Context, orderID string) (*OrderRef, error)
	SetOrderStatus(ctx context.Context, ref OrderRef, status OrderStatus) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// LeaseExtender is implemented by handles whose lease can be pushed out
// while the holder is still working. Extend returns ErrLockLost once the
// key belongs to someone else.
type LeaseExtender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Locker provides mutual exclusion keyed by merchant. Acquire blocks until
// the lock is free or ctx is done; TryAcquire returns ErrLockHeld instead of
// waiting.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type ClaimStatus string

const (
	ClaimStatusProcessing ClaimStatus = "processing"
	ClaimStatusCompleted  ClaimStatus = "completed"
	ClaimStatusRetryReady ClaimStatus = "retry_ready"
)

// EventLedger records which events already produced their side effects so a
// redelivered batch skips them.
type EventLedger interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
