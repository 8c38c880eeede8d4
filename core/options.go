package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type builder struct {
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	credentialStore CredentialStore
	locker          Locker
	clock           Clock
}

type Option func(*builder)

func WithLogger(logger Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *builder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *builder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *builder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *builder) {
		b.optionsResolver = resolver
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *builder) {
		b.credentialStore = store
	}
}

func WithLocker(locker Locker) Option {
	return func(b *builder) {
		b.locker = locker
	}
}

func WithClock(clock Clock) Option {
	return func(b *builder) {
		b.clock = clock
	}
}

func newBuilder(opts []Option) builder {
	b := builder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}
	if b.metricsRecorder == nil {
		b.metricsRecorder = NopMetricsRecorder{}
	}
	if b.configProvider == nil {
		b.configProvider = NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = GoOptionsResolver{}
	}
	if b.credentialStore == nil {
		b.credentialStore = NewMemoryCredentialStore()
	}
	if b.locker == nil {
		b.locker = NewMemoryLocker()
	}
	if b.clock == nil {
		b.clock = systemClock
	}
	return b
}

// ResolveLogger returns the named logger for a component, falling back to a
// no-op logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	resolvedProvider, resolved := glog.Resolve(name, provider, logger)
	resolved = glog.Ensure(resolved)
	if logger == nil && resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			resolved = glog.Ensure(named)
		}
	}
	return resolved
}

// LoadConfig layers defaults, the configured source and runtime overrides.
func LoadConfig(ctx context.Context, runtime Config, options ...Option) (Config, error) {
	b := newBuilder(options)
	defaults := DefaultConfig()
	loaded, err := b.configProvider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return b.optionsResolver.Resolve(defaults, loaded, runtime)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(section map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			section[key] = value
		}
	}
	setNumber := func(section map[string]any, key string, value any, zero bool) {
		if includeZero || !zero {
			section[key] = value
		}
	}
	nest := func(key string, section map[string]any) {
		if len(section) > 0 {
			layer[key] = section
		}
	}

	setString(layer, "service_name", cfg.ServiceName)

	provider := map[string]any{}
	setString(provider, "id", cfg.Provider.ID)
	setString(provider, "base_url", cfg.Provider.BaseURL)
	setString(provider, "client_id", cfg.Provider.ClientID)
	setString(provider, "client_secret", cfg.Provider.ClientSecret)
	nest("provider", provider)

	httpSection := map[string]any{}
	setNumber(httpSection, "request_timeout", cfg.HTTP.RequestTimeout, cfg.HTTP.RequestTimeout == 0)
	setNumber(httpSection, "max_body_bytes", cfg.HTTP.MaxBodyBytes, cfg.HTTP.MaxBodyBytes == 0)
	setNumber(httpSection, "requests_per_second", cfg.HTTP.RequestsPerSecond, cfg.HTTP.RequestsPerSecond == 0)
	setNumber(httpSection, "burst", cfg.HTTP.Burst, cfg.HTTP.Burst == 0)
	nest("http", httpSection)

	tokens := map[string]any{}
	setNumber(tokens, "lock_ttl", cfg.Tokens.LockTTL, cfg.Tokens.LockTTL == 0)
	nest("tokens", tokens)

	events := map[string]any{}
	setNumber(events, "claim_lease", cfg.Events.ClaimLease, cfg.Events.ClaimLease == 0)
	setNumber(events, "claim_ttl", cfg.Events.ClaimTTL, cfg.Events.ClaimTTL == 0)
	setNumber(events, "poll_lock_ttl", cfg.Events.PollLockTTL, cfg.Events.PollLockTTL == 0)
	nest("events", events)

	interruptions := map[string]any{}
	setNumber(interruptions, "default_duration", cfg.Interruptions.DefaultDuration, cfg.Interruptions.DefaultDuration == 0)
	setString(interruptions, "id_prefix", cfg.Interruptions.IDPrefix)
	setString(interruptions, "description", cfg.Interruptions.Description)
	setString(interruptions, "time_zone", cfg.Interruptions.TimeZone)
	nest("interruptions", interruptions)

	cancellation := map[string]any{}
	setString(cancellation, "reason", cfg.Cancellation.Reason)
	setString(cancellation, "code", cfg.Cancellation.Code)
	nest("cancellation", cancellation)

	return layer
}
