package ifood

import (
	"time"

	"github.com/goliatone/go-marketplace/core"
)

type settings struct {
	loggerName      string
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	clock           core.Clock
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

func WithClock(clock core.Clock) Option {
	return func(s *settings) {
		s.clock = clock
	}
}

func resolveOptions(loggerName string, opts []Option) settings {
	s := settings{loggerName: loggerName}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s settings) observer() *core.Observer {
	logger := core.ResolveLogger(s.loggerName, s.loggerProvider, s.logger)
	return core.NewObserver(logger, s.metricsRecorder)
}
