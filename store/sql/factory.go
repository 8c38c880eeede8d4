package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-marketplace/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	credentialOptions []CredentialStoreOption
	cacheService      repositorycache.CacheService
	claimRetention    time.Duration

	credentialStore       *CredentialStore
	cachedCredentialStore *CachedCredentialStore
	eventLedger           *EventLedger
}

type FactoryOption func(*RepositoryFactory)

func WithCredentialOptions(opts ...CredentialStoreOption) FactoryOption {
	return func(f *RepositoryFactory) {
		f.credentialOptions = append(f.credentialOptions, opts...)
	}
}

// WithCredentialCache puts a read-through cache in front of the credential
// store.
func WithCredentialCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func WithClaimRetention(retention time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.claimRetention = retention
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build accepts a *bun.DB or anything exposing DB() *bun.DB.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.eventLedger != nil {
		return nil
	}
	return f.initStores()
}

// CredentialStore returns the cached store when a cache was configured.
func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	if f.cachedCredentialStore != nil {
		return f.cachedCredentialStore
	}
	if f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) EventLedger() *EventLedger {
	if f == nil {
		return nil
	}
	return f.eventLedger
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.credentialOptions...)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore

	if f.cacheService != nil {
		cached, err := NewCachedCredentialStore(credentialStore, f.cacheService)
		if err != nil {
			return err
		}
		f.cachedCredentialStore = cached
	}

	eventLedger, err := NewEventLedger(f.db, f.claimRetention)
	if err != nil {
		return err
	}
	f.eventLedger = eventLedger
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
