package core

import (
	"context"
	"sync"
	"time"
)

type fakeAuthProvider struct {
	mu            sync.Mutex
	refreshCalls  int
	exchangeCalls int
	refreshDelay  time.Duration
	refreshErr    error
	exchangeErr   error
	nextTokens    TokenSet
	lastRefresh   string
	lastExchange  string
	deviceCode    DeviceCode
}

func (p *fakeAuthProvider) RequestUserCode(context.Context) (DeviceCode, error) {
	return p.deviceCode, nil
}

func (p *fakeAuthProvider) ExchangeCode(_ context.Context, authCode string, _ string) (TokenSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	p.lastExchange = authCode
	if p.exchangeErr != nil {
		return TokenSet{}, p.exchangeErr
	}
	return p.nextTokens, nil
}

func (p *fakeAuthProvider) RefreshToken(_ context.Context, refreshToken string) (TokenSet, error) {
	p.mu.Lock()
	p.refreshCalls++
	p.lastRefresh = refreshToken
	delay := p.refreshDelay
	err := p.refreshErr
	tokens := p.nextTokens
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return TokenSet{}, err
	}
	return tokens, nil
}

func (p *fakeAuthProvider) calls() (refresh int, exchange int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls, p.exchangeCalls
}

func fixedClock(now time.Time) Clock {
	return func() time.Time { return now }
}

func seedCredential(t interface{ Fatalf(string, ...any) }, store *MemoryCredentialStore, merchantID string, expiresAt time.Time) {
	ctx := context.Background()
	if _, err := store.SaveUserCode(ctx, merchantID, "USER-1", "verifier-1"); err != nil {
		t.Fatalf("seed user code: %v", err)
	}
	if _, err := store.SaveAuthCode(ctx, merchantID, "auth-1"); err != nil {
		t.Fatalf("seed auth code: %v", err)
	}
	if _, err := store.SaveTokens(ctx, merchantID, TokenSet{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    expiresAt,
	}); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}
}
