package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TokenManager owns the device-code grant and keeps each merchant's bearer
// token fresh. Exchange and refresh run under a per-merchant lock; callers
// that queue behind a refresh reuse the token it persisted.
type TokenManager struct {
	config   Config
	provider AuthProvider
	store    CredentialStore
	locker   Locker
	clock    Clock
	logger   Logger
	observer *Observer
}

func NewTokenManager(cfg Config, provider AuthProvider, opts ...Option) (*TokenManager, error) {
	if provider == nil {
		return nil, DependencyError("auth provider")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := newBuilder(opts)
	logger := ResolveLogger("marketplace.tokens", b.loggerProvider, b.logger)
	return &TokenManager{
		config:   cfg,
		provider: provider,
		store:    b.credentialStore,
		locker:   b.locker,
		clock:    b.clock,
		logger:   logger,
		observer: NewObserver(logger, b.metricsRecorder),
	}, nil
}

func (m *TokenManager) Store() CredentialStore {
	if m == nil {
		return nil
	}
	return m.store
}

// RequestUserCode starts or restarts the device-code flow and returns the
// URL a human must visit.
func (m *TokenManager) RequestUserCode(ctx context.Context, merchantID string) (result UserCodeResult, err error) {
	startedAt := time.Now()
	merchantID = strings.TrimSpace(merchantID)
	defer func() {
		m.observer.ObserveOperation(ctx, startedAt, "request_user_code", err, m.fields(merchantID))
	}()
	if merchantID == "" {
		return UserCodeResult{}, BadInputError("merchant_id", "merchant id is required")
	}

	code, err := m.provider.RequestUserCode(ctx)
	if err != nil {
		return UserCodeResult{}, err
	}
	if _, err := m.store.SaveUserCode(ctx, merchantID, code.UserCode, code.AuthCodeVerifier); err != nil {
		return UserCodeResult{}, err
	}

	result = UserCodeResult{
		MerchantID:              merchantID,
		UserCode:                code.UserCode,
		VerificationURL:         code.VerificationURLComplete,
		VerificationURLComplete: code.VerificationURLComplete,
	}
	if result.VerificationURL == "" {
		result.VerificationURL = code.VerificationURL
	}
	if code.ExpiresIn > 0 {
		expiresAt := m.clock().Add(code.ExpiresIn)
		result.ExpiresAt = &expiresAt
	}
	return result, nil
}

// StoreAuthCode records the code obtained out of band. Any previous tokens
// are discarded so the next GetValidToken exchanges the new grant.
func (m *TokenManager) StoreAuthCode(ctx context.Context, merchantID string, authCode string) (err error) {
	startedAt := time.Now()
	merchantID = strings.TrimSpace(merchantID)
	defer func() {
		m.observer.ObserveOperation(ctx, startedAt, "store_auth_code", err, m.fields(merchantID))
	}()
	if merchantID == "" {
		return BadInputError("merchant_id", "merchant id is required")
	}
	authCode = strings.TrimSpace(authCode)
	if authCode == "" {
		return BadInputError("auth_code", "authorization code is required")
	}

	unlock, err := m.lock(ctx, merchantID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := m.store.SaveAuthCode(ctx, merchantID, authCode); err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NotReadyError(merchantID, "authorization flow was not started")
		}
		return err
	}
	return nil
}

func (m *TokenManager) IsReady(ctx context.Context, merchantID string) (bool, error) {
	credential, err := m.store.Get(ctx, strings.TrimSpace(merchantID))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}
	return credential.Ready(), nil
}

// Status reports the derived token state without calling the provider.
func (m *TokenManager) Status(ctx context.Context, merchantID string) (TokenStatusReport, error) {
	merchantID = strings.TrimSpace(merchantID)
	report := TokenStatusReport{MerchantID: merchantID, State: TokenStateUnauthorized}
	credential, err := m.store.Get(ctx, merchantID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return report, nil
		}
		return TokenStatusReport{}, err
	}
	report.State = ResolveTokenState(m.clock(), &credential)
	report.Ready = credential.Ready()
	report.ExpiresAt = credential.ExpiresAt
	return report, nil
}

// GetValidToken returns a token valid for at least TokenRefreshMargin,
// exchanging or refreshing as needed. A provider rejection is reported as
// TokenStatusExpired with a nil error.
func (m *TokenManager) GetValidToken(ctx context.Context, merchantID string) (TokenResult, error) {
	merchantID = strings.TrimSpace(merchantID)
	credential, err := m.loadReady(ctx, merchantID)
	if err != nil {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}
	if credential.HasToken() && !ShouldRefresh(m.clock(), &credential) {
		return okResult(credential, false), nil
	}
	return m.renew(ctx, merchantID, false)
}

// Refresh exchanges the stored refresh token regardless of the remaining
// lifetime.
func (m *TokenManager) Refresh(ctx context.Context, merchantID string) (TokenResult, error) {
	merchantID = strings.TrimSpace(merchantID)
	if _, err := m.loadReady(ctx, merchantID); err != nil {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}
	return m.renew(ctx, merchantID, true)
}

func (m *TokenManager) renew(ctx context.Context, merchantID string, force bool) (result TokenResult, err error) {
	startedAt := time.Now()
	operation := "refresh_token"
	defer func() {
		fields := m.fields(merchantID)
		fields["outcome"] = string(result.Status)
		fields["refreshed"] = result.Refreshed
		m.observer.ObserveOperation(ctx, startedAt, operation, err, fields)
	}()

	unlock, err := m.lock(ctx, merchantID)
	if err != nil {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}
	defer unlock()

	// re-read from the system of record: a caller ahead of us may have
	// rotated the refresh token and a cached copy can still hold the old one
	credential, err := m.loadReadyFresh(ctx, merchantID)
	if err != nil {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}

	var tokens TokenSet
	switch {
	case !credential.HasToken():
		operation = "exchange_code"
		tokens, err = m.provider.ExchangeCode(ctx, credential.AuthCode, credential.AuthCodeVerifier)
	case !force && !ShouldRefresh(m.clock(), &credential):
		return okResult(credential, false), nil
	case strings.TrimSpace(credential.RefreshToken) == "":
		return m.expired(ctx, credential, TokenExpiredError("refresh", 0, "no refresh token stored")), nil
	default:
		tokens, err = m.provider.RefreshToken(ctx, credential.RefreshToken)
	}
	if err != nil {
		if IsKind(err, KindTokenExpired) {
			return m.expired(ctx, credential, err), nil
		}
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}

	if strings.TrimSpace(tokens.AccessToken) == "" || tokens.ExpiresAt.IsZero() {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable},
			ProviderServerError(operation, 0, "token response missing access token or expiry")
	}
	if strings.TrimSpace(tokens.RefreshToken) == "" {
		tokens.RefreshToken = credential.RefreshToken
	}

	saved, err := m.store.SaveTokens(ctx, merchantID, tokens)
	if err != nil {
		return TokenResult{MerchantID: merchantID, Status: TokenStatusUnavailable}, err
	}
	return okResult(saved, true), nil
}

func (m *TokenManager) expired(ctx context.Context, credential Credential, cause error) TokenResult {
	fields := m.fields(credential.MerchantID)
	fields["error"] = cause.Error()
	m.observer.Log(ctx, "warn", "provider rejected token request; re-authorization required", fields)
	return TokenResult{
		MerchantID: credential.MerchantID,
		ExpiresAt:  credential.ExpiresAt,
		Status:     TokenStatusExpired,
	}
}

func (m *TokenManager) loadReady(ctx context.Context, merchantID string) (Credential, error) {
	return m.readReady(ctx, merchantID, m.store.Get)
}

func (m *TokenManager) loadReadyFresh(ctx context.Context, merchantID string) (Credential, error) {
	if fresh, ok := m.store.(FreshCredentialReader); ok {
		return m.readReady(ctx, merchantID, fresh.GetFresh)
	}
	return m.readReady(ctx, merchantID, m.store.Get)
}

func (m *TokenManager) readReady(
	ctx context.Context,
	merchantID string,
	get func(context.Context, string) (Credential, error),
) (Credential, error) {
	if merchantID == "" {
		return Credential{}, BadInputError("merchant_id", "merchant id is required")
	}
	credential, err := get(ctx, merchantID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return Credential{}, NotReadyError(merchantID, "no credential")
		}
		return Credential{}, err
	}
	if !credential.Ready() {
		return Credential{}, NotReadyError(merchantID, "authorization code missing")
	}
	return credential, nil
}

func (m *TokenManager) lock(ctx context.Context, merchantID string) (func(), error) {
	handle, err := m.locker.Acquire(ctx, TokenLockKey(merchantID), m.config.Tokens.LockTTL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, TransportError("token_lock", ctxErr)
		}
		return nil, InternalError(err, "marketplace: acquire token lock failed")
	}
	return func() {
		_ = handle.Unlock(context.WithoutCancel(ctx))
	}, nil
}

func (m *TokenManager) fields(merchantID string) map[string]any {
	return map[string]any{
		"merchant_id": merchantID,
		"provider_id": m.config.Provider.ID,
	}
}

func okResult(credential Credential, refreshed bool) TokenResult {
	return TokenResult{
		MerchantID: credential.MerchantID,
		Token:      credential.AccessToken,
		ExpiresAt:  credential.ExpiresAt,
		Status:     TokenStatusOK,
		Refreshed:  refreshed,
	}
}

var _ TokenSource = (*TokenManager)(nil)
