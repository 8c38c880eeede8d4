package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-marketplace/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "marketplace::credential::v1"

// CachedCredentialStore reads through a cache and drops the merchant's entry
// after every write.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey returns marketplace::credential::v1::<merchant_id> with
// the merchant id path-escaped.
func CredentialCacheKey(merchantID string) (string, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return "", core.BadInputError("merchant_id", "merchant id is required")
	}
	return credentialCacheKeyPrefix + "::" + url.PathEscape(merchantID), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, merchantID string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(merchantID)
	if err != nil {
		return core.Credential{}, err
	}
	credential, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Credential, error) {
		fetched, fetchErr := s.base.Get(ctx, strings.TrimSpace(merchantID))
		if fetchErr != nil {
			return core.Credential{}, fetchErr
		}
		return cloneCredential(fetched), nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return cloneCredential(credential), nil
}

// GetFresh drops the merchant's entry and reads the base store directly. A
// Get that raced a write can repopulate the entry with the pre-write row, so
// callers holding the token lock read through here.
func (s *CachedCredentialStore) GetFresh(ctx context.Context, merchantID string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(merchantID)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Credential{}, err
	}
	credential, err := s.base.Get(ctx, strings.TrimSpace(merchantID))
	if err != nil {
		return core.Credential{}, err
	}
	return cloneCredential(credential), nil
}

func (s *CachedCredentialStore) SaveUserCode(ctx context.Context, merchantID string, userCode string, verifier string) (core.Credential, error) {
	return s.write(ctx, merchantID, func() (core.Credential, error) {
		return s.base.SaveUserCode(ctx, merchantID, userCode, verifier)
	})
}

func (s *CachedCredentialStore) SaveAuthCode(ctx context.Context, merchantID string, authCode string) (core.Credential, error) {
	return s.write(ctx, merchantID, func() (core.Credential, error) {
		return s.base.SaveAuthCode(ctx, merchantID, authCode)
	})
}

func (s *CachedCredentialStore) SaveTokens(ctx context.Context, merchantID string, tokens core.TokenSet) (core.Credential, error) {
	return s.write(ctx, merchantID, func() (core.Credential, error) {
		return s.base.SaveTokens(ctx, merchantID, tokens)
	})
}

func (s *CachedCredentialStore) SaveMerchantProfile(ctx context.Context, merchantID string, profile core.MerchantProfile) (core.Credential, error) {
	return s.write(ctx, merchantID, func() (core.Credential, error) {
		return s.base.SaveMerchantProfile(ctx, merchantID, profile)
	})
}

func (s *CachedCredentialStore) write(ctx context.Context, merchantID string, fn func() (core.Credential, error)) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(merchantID)
	if err != nil {
		return core.Credential{}, err
	}
	saved, err := fn()
	// a failed write may still have landed
	if deleteErr := s.cache.Delete(ctx, cacheKey); deleteErr != nil && err == nil {
		return core.Credential{}, deleteErr
	}
	if err != nil {
		return core.Credential{}, err
	}
	return cloneCredential(saved), nil
}

func cloneCredential(credential core.Credential) core.Credential {
	if credential.ExpiresAt != nil {
		expiresAt := credential.ExpiresAt.UTC()
		credential.ExpiresAt = &expiresAt
	}
	return credential
}
