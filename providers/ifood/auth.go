package ifood

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/transport"
)

// DefaultTokenTTL applies when the token endpoint omits expiresIn.
const DefaultTokenTTL = 6 * time.Hour

// AuthProvider drives the device-code grant against the authentication
// endpoints. It holds no per-merchant state.
type AuthProvider struct {
	cfg      core.Config
	rest     *transport.RESTAdapter
	clock    core.Clock
	observer *core.Observer
}

func NewAuthProvider(cfg core.Config, rest *transport.RESTAdapter, opts ...Option) (*AuthProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireClientCredentials(); err != nil {
		return nil, err
	}
	if rest == nil {
		rest = transport.NewRESTAdapterFromConfig(nil, cfg.HTTP)
	}
	settings := resolveOptions("marketplace.auth", opts)
	return &AuthProvider{
		cfg:      cfg,
		rest:     rest,
		clock:    settings.clock,
		observer: settings.observer(),
	}, nil
}

func (p *AuthProvider) RequestUserCode(ctx context.Context) (code core.DeviceCode, err error) {
	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "ifood_user_code", err, p.fields())
	}()

	form := url.Values{}
	form.Set("clientId", p.cfg.Provider.ClientID)
	res, err := p.postForm(ctx, "user_code", pathUserCode, form)
	if err != nil {
		return core.DeviceCode{}, err
	}
	if err := transport.Classify("user_code", transport.EndpointAPI, res); err != nil {
		return core.DeviceCode{}, err
	}

	var payload userCodePayload
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return core.DeviceCode{}, core.ProviderServerError("user_code", res.StatusCode, "malformed user code response")
	}
	if strings.TrimSpace(payload.UserCode) == "" || strings.TrimSpace(payload.AuthorizationCodeVerifier) == "" {
		return core.DeviceCode{}, core.ProviderServerError("user_code", res.StatusCode, "user code response missing fields")
	}
	return core.DeviceCode{
		UserCode:                strings.TrimSpace(payload.UserCode),
		AuthCodeVerifier:        strings.TrimSpace(payload.AuthorizationCodeVerifier),
		VerificationURL:         strings.TrimSpace(payload.VerificationURL),
		VerificationURLComplete: strings.TrimSpace(payload.VerificationURLComplete),
		ExpiresIn:               time.Duration(payload.ExpiresIn) * time.Second,
	}, nil
}

func (p *AuthProvider) ExchangeCode(ctx context.Context, authCode string, verifier string) (tokens core.TokenSet, err error) {
	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "ifood_exchange_code", err, p.fields())
	}()

	form := url.Values{}
	form.Set("grantType", grantAuthorizationCode)
	form.Set("authorizationCode", strings.TrimSpace(authCode))
	form.Set("authorizationCodeVerifier", strings.TrimSpace(verifier))
	return p.fetchToken(ctx, form)
}

func (p *AuthProvider) RefreshToken(ctx context.Context, refreshToken string) (tokens core.TokenSet, err error) {
	startedAt := time.Now()
	defer func() {
		p.observer.ObserveOperation(ctx, startedAt, "ifood_refresh_token", err, p.fields())
	}()

	form := url.Values{}
	form.Set("grantType", grantRefreshToken)
	form.Set("refreshToken", strings.TrimSpace(refreshToken))
	return p.fetchToken(ctx, form)
}

func (p *AuthProvider) fetchToken(ctx context.Context, form url.Values) (core.TokenSet, error) {
	form.Set("clientId", p.cfg.Provider.ClientID)
	form.Set("clientSecret", p.cfg.Provider.ClientSecret)

	res, err := p.postForm(ctx, "token", pathToken, form)
	if err != nil {
		return core.TokenSet{}, err
	}
	if err := transport.Classify("token", transport.EndpointToken, res); err != nil {
		return core.TokenSet{}, err
	}

	payload, err := parseTokenPayload(res.Body, res.Headers["Content-Type"])
	if err != nil {
		return core.TokenSet{}, core.ProviderServerError("token", res.StatusCode, "malformed token response")
	}
	if payload.ErrorCode != "" {
		return core.TokenSet{}, core.TokenExpiredError("token", res.StatusCode, describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenSet{}, core.ProviderServerError("token", res.StatusCode, "token response missing access token")
	}

	ttl := DefaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	return core.TokenSet{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    p.clock().Add(ttl),
	}, nil
}

func (p *AuthProvider) postForm(ctx context.Context, endpoint string, path string, form url.Values) (transport.Response, error) {
	return p.rest.Do(ctx, transport.Request{
		Endpoint: endpoint,
		Method:   http.MethodPost,
		URL:      joinURL(p.cfg.Provider.BaseURL, path),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
			"Accept":       "application/json",
		},
		Body: []byte(form.Encode()),
	})
}

func (p *AuthProvider) fields() map[string]any {
	return map[string]any{"provider_id": p.cfg.Provider.ID}
}

func describeTokenError(payload tokenPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

var _ core.AuthProvider = (*AuthProvider)(nil)
