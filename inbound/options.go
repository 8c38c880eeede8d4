package inbound

import (
	"time"

	"github.com/goliatone/go-marketplace/core"
)

type settings struct {
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	ledger          core.EventLedger
	claimLease      time.Duration
	locker          core.Locker
	lockTTL         time.Duration
}

type Option func(*settings)

func WithLogger(logger core.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *settings) {
		s.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *settings) {
		s.metricsRecorder = recorder
	}
}

// WithEventLedger makes the dispatcher skip events whose side effects were
// already recorded.
func WithEventLedger(ledger core.EventLedger, lease time.Duration) Option {
	return func(s *settings) {
		s.ledger = ledger
		s.claimLease = lease
	}
}

// WithLocker sets the lock guarding one poll cycle per merchant.
func WithLocker(locker core.Locker, ttl time.Duration) Option {
	return func(s *settings) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

func resolveOptions(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.claimLease <= 0 {
		s.claimLease = defaultClaimLease
	}
	if s.locker == nil {
		s.locker = core.NewMemoryLocker()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * time.Minute
	}
	return s
}

func (s settings) observer(name string) *core.Observer {
	return core.NewObserver(core.ResolveLogger(name, s.loggerProvider, s.logger), s.metricsRecorder)
}
