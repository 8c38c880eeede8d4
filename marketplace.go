package marketplace

import "github.com/goliatone/go-marketplace/core"

type Config = core.Config

type Option = core.Option

type Credential = core.Credential
type CredentialStore = core.CredentialStore
type OrderLifecycleBridge = core.OrderLifecycleBridge
type OrderRef = core.OrderRef
type OrderDetail = core.OrderDetail
type OrderStatus = core.OrderStatus
type Event = core.Event
type EventCode = core.EventCode
type TokenState = core.TokenState
type TokenResult = core.TokenResult
type UserCodeResult = core.UserCodeResult
type ErrorKind = core.ErrorKind

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithCredentialStore = core.WithCredentialStore
	WithLocker          = core.WithLocker
	WithClock           = core.WithClock
)

var (
	KindOf = core.KindOf
	IsKind = core.IsKind
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig layers defaults, the configured provider and runtime overrides.
var LoadConfig = core.LoadConfig
