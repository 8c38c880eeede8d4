package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

type MemoryCredentialStore struct {
	mu      sync.RWMutex
	records map[string]Credential
	nowFn   func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		records: map[string]Credential{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryCredentialStore) Get(_ context.Context, merchantID string) (Credential, error) {
	merchantID = strings.TrimSpace(merchantID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[merchantID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cloneCredential(record), nil
}

func (s *MemoryCredentialStore) SaveUserCode(
	_ context.Context,
	merchantID string,
	userCode string,
	verifier string,
) (Credential, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return Credential{}, BadInputError("merchant_id", "merchant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	record, ok := s.records[merchantID]
	if !ok {
		record = Credential{MerchantID: merchantID, CreatedAt: now}
	}
	record.Version++
	record.UserCode = userCode
	record.AuthCodeVerifier = verifier
	record.UpdatedAt = now
	s.records[merchantID] = record
	return cloneCredential(record), nil
}

func (s *MemoryCredentialStore) SaveAuthCode(_ context.Context, merchantID string, authCode string) (Credential, error) {
	return s.update(merchantID, func(record *Credential) {
		record.AuthCode = authCode
		record.AccessToken = ""
		record.RefreshToken = ""
		record.ExpiresAt = nil
	})
}

func (s *MemoryCredentialStore) SaveTokens(_ context.Context, merchantID string, tokens TokenSet) (Credential, error) {
	expiresAt := tokens.ExpiresAt.UTC()
	return s.update(merchantID, func(record *Credential) {
		record.AccessToken = tokens.AccessToken
		record.RefreshToken = tokens.RefreshToken
		record.ExpiresAt = &expiresAt
	})
}

func (s *MemoryCredentialStore) SaveMerchantProfile(
	_ context.Context,
	merchantID string,
	profile MerchantProfile,
) (Credential, error) {
	return s.update(merchantID, func(record *Credential) {
		record.ExternalMerchantID = profile.ExternalMerchantID
		record.MerchantName = profile.Name
	})
}

func (s *MemoryCredentialStore) update(merchantID string, mutate func(*Credential)) (Credential, error) {
	merchantID = strings.TrimSpace(merchantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[merchantID]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	mutate(&record)
	record.Version++
	record.UpdatedAt = s.nowFn()
	s.records[merchantID] = record
	return cloneCredential(record), nil
}

func cloneCredential(record Credential) Credential {
	if record.ExpiresAt != nil {
		expiresAt := *record.ExpiresAt
		record.ExpiresAt = &expiresAt
	}
	return record
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
