package marketplace

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-marketplace/adapters/gocommand"
	"github.com/goliatone/go-marketplace/adapters/gojob"
	"github.com/goliatone/go-marketplace/adapters/gologger"
	"github.com/goliatone/go-marketplace/command"
	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/inbound"
	"github.com/goliatone/go-marketplace/orders"
	"github.com/goliatone/go-marketplace/providers/ifood"
	"github.com/goliatone/go-marketplace/query"
	"github.com/goliatone/go-marketplace/security"
	sqlstore "github.com/goliatone/go-marketplace/store/sql"
	"github.com/goliatone/go-marketplace/transport"
)

// Dependencies are the collaborators the host application supplies. Only
// Bridge is required; everything else falls back to an in-process default.
type Dependencies struct {
	Bridge core.OrderLifecycleBridge

	HTTPClient transport.HTTPDoer

	// Persistence switches credentials and the event ledger to SQL. The
	// client must already carry the marketplace migrations.
	Persistence     *persistence.Client
	SecretProvider  core.SecretProvider
	CredentialCache repositorycache.CacheService

	// EncryptionKey builds an app-key SecretProvider when SecretProvider
	// is nil. Tokens are stored in clear when both are empty.
	EncryptionKey []byte

	CredentialStore core.CredentialStore
	EventLedger     core.EventLedger
	Locker          core.Locker

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
	Clock          core.Clock
}

// Marketplace is the wired integration for one provider account.
type Marketplace struct {
	config     Config
	store      core.CredentialStore
	ledger     core.EventLedger
	locker     core.Locker
	factory    *sqlstore.RepositoryFactory
	tokens     *core.TokenManager
	auth       *ifood.AuthProvider
	client     *ifood.Client
	dispatcher *inbound.Dispatcher
	poller     *inbound.Poller
	orders     *orders.Service
	commands   command.Handlers
	queries    query.Handlers
	logger     core.Logger
	provider   core.LoggerProvider
	metrics    core.MetricsRecorder
}

// New resolves configuration through the layered loader, then builds every
// component over the supplied dependencies.
func New(ctx context.Context, cfg Config, deps Dependencies, opts ...Option) (*Marketplace, error) {
	if deps.Bridge == nil {
		return nil, core.DependencyError("order lifecycle bridge")
	}
	resolved, err := core.LoadConfig(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	m := &Marketplace{
		config:   resolved,
		logger:   deps.Logger,
		provider: deps.LoggerProvider,
		metrics:  deps.Metrics,
	}
	if m.metrics == nil {
		m.metrics = core.NopMetricsRecorder{}
	}
	if err := m.buildStores(deps); err != nil {
		return nil, err
	}
	if err := m.buildComponents(deps, opts); err != nil {
		return nil, err
	}

	gologger.ResolveComponent("facade", m.provider, m.logger).Debug("marketplace integration wired",
		"provider_id", resolved.Provider.ID,
		"sql", m.factory != nil,
	)
	return m, nil
}

func (m *Marketplace) buildStores(deps Dependencies) error {
	m.store = deps.CredentialStore
	m.ledger = deps.EventLedger
	m.locker = deps.Locker

	if deps.Persistence != nil {
		factoryOpts := []sqlstore.FactoryOption{sqlstore.WithClaimRetention(m.config.Events.ClaimTTL)}
		secrets := deps.SecretProvider
		if secrets == nil && len(deps.EncryptionKey) > 0 {
			provider, err := security.NewAppKeySecretProvider(deps.EncryptionKey)
			if err != nil {
				return fmt.Errorf("marketplace: build secret provider: %w", err)
			}
			secrets = provider
		}
		if secrets != nil {
			factoryOpts = append(factoryOpts, sqlstore.WithCredentialOptions(sqlstore.WithSecretProvider(secrets)))
		}
		if deps.CredentialCache != nil {
			factoryOpts = append(factoryOpts, sqlstore.WithCredentialCache(deps.CredentialCache))
		}
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(deps.Persistence, factoryOpts...)
		if err != nil {
			return fmt.Errorf("marketplace: build sql stores: %w", err)
		}
		m.factory = factory
		if m.store == nil {
			m.store = factory.CredentialStore()
		}
		if m.ledger == nil {
			m.ledger = factory.EventLedger()
		}
	}

	if m.store == nil {
		m.store = core.NewMemoryCredentialStore()
	}
	if m.ledger == nil {
		m.ledger = inbound.NewInMemoryEventLedger(m.config.Events.ClaimTTL)
	}
	if m.locker == nil {
		m.locker = core.NewMemoryLocker()
	}
	return nil
}

func (m *Marketplace) buildComponents(deps Dependencies, opts []Option) error {
	cfg := m.config
	rest := transport.NewRESTAdapterFromConfig(deps.HTTPClient, cfg.HTTP)

	ifoodOpts := []ifood.Option{
		ifood.WithLogger(m.logger),
		ifood.WithLoggerProvider(m.provider),
		ifood.WithMetricsRecorder(m.metrics),
	}
	if deps.Clock != nil {
		ifoodOpts = append(ifoodOpts, ifood.WithClock(deps.Clock))
	}

	auth, err := ifood.NewAuthProvider(cfg, rest, ifoodOpts...)
	if err != nil {
		return err
	}
	m.auth = auth

	tokenOpts := append([]Option{}, opts...)
	tokenOpts = append(tokenOpts,
		core.WithCredentialStore(m.store),
		core.WithLocker(m.locker),
		core.WithLogger(m.logger),
		core.WithLoggerProvider(m.provider),
		core.WithMetricsRecorder(m.metrics),
	)
	if deps.Clock != nil {
		tokenOpts = append(tokenOpts, core.WithClock(deps.Clock))
	}
	tokens, err := core.NewTokenManager(cfg, auth, tokenOpts...)
	if err != nil {
		return err
	}
	m.tokens = tokens

	client, err := ifood.NewClient(cfg, rest, tokens, m.store, ifoodOpts...)
	if err != nil {
		return err
	}
	m.client = client

	inboundOpts := []inbound.Option{
		inbound.WithLogger(m.logger),
		inbound.WithLoggerProvider(m.provider),
		inbound.WithMetricsRecorder(m.metrics),
		inbound.WithEventLedger(m.ledger, cfg.Events.ClaimLease),
		inbound.WithLocker(m.locker, cfg.Events.PollLockTTL),
	}
	dispatcher, err := inbound.NewDispatcher(deps.Bridge, client, inboundOpts...)
	if err != nil {
		return err
	}
	m.dispatcher = dispatcher

	poller, err := inbound.NewPoller(client, tokens, dispatcher, inboundOpts...)
	if err != nil {
		return err
	}
	m.poller = poller

	orderService, err := orders.NewService(client, deps.Bridge,
		orders.WithLogger(m.logger),
		orders.WithLoggerProvider(m.provider),
		orders.WithMetricsRecorder(m.metrics),
	)
	if err != nil {
		return err
	}
	m.orders = orderService

	m.commands = command.NewHandlers(tokens, poller, client, orderService)
	m.queries = query.NewHandlers(tokens, client)
	return nil
}

func (m *Marketplace) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Marketplace) Tokens() *core.TokenManager {
	if m == nil {
		return nil
	}
	return m.tokens
}

func (m *Marketplace) Client() *ifood.Client {
	if m == nil {
		return nil
	}
	return m.client
}

func (m *Marketplace) Dispatcher() *inbound.Dispatcher {
	if m == nil {
		return nil
	}
	return m.dispatcher
}

func (m *Marketplace) Poller() *inbound.Poller {
	if m == nil {
		return nil
	}
	return m.poller
}

func (m *Marketplace) Orders() *orders.Service {
	if m == nil {
		return nil
	}
	return m.orders
}

func (m *Marketplace) CredentialStore() core.CredentialStore {
	if m == nil {
		return nil
	}
	return m.store
}

func (m *Marketplace) EventLedger() core.EventLedger {
	if m == nil {
		return nil
	}
	return m.ledger
}

// RepositoryFactory is nil unless Dependencies.Persistence was set.
func (m *Marketplace) RepositoryFactory() *sqlstore.RepositoryFactory {
	if m == nil {
		return nil
	}
	return m.factory
}

func (m *Marketplace) Commands() command.Handlers {
	if m == nil {
		return command.Handlers{}
	}
	return m.commands
}

func (m *Marketplace) Queries() query.Handlers {
	if m == nil {
		return query.Handlers{}
	}
	return m.queries
}

// Register subscribes every command and query on the go-command dispatcher.
func (m *Marketplace) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if m == nil {
		return nil, core.DependencyError("marketplace")
	}
	return gocommand.RegisterMarketplace(adapter, m.commands, m.queries)
}

// PollJobRunner returns a go-job runner that executes scheduled polls
// through this integration's poller.
func (m *Marketplace) PollJobRunner(opts ...gojob.RunnerOption) (*gojob.Runner, error) {
	if m == nil || m.poller == nil {
		return nil, core.DependencyError("poller")
	}
	runnerOpts := append([]gojob.RunnerOption{gojob.WithLogger(m.provider, m.logger)}, opts...)
	return gojob.NewRunner(m.poller, runnerOpts...)
}
