package ifood

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/transport"
)

// Client is the stateless call surface of the merchant API. Every call asks
// the TokenSource for a bearer token; the client never caches one.
type Client struct {
	cfg      core.Config
	rest     *transport.RESTAdapter
	tokens   core.TokenSource
	store    core.CredentialStore
	clock    core.Clock
	location *time.Location
	observer *core.Observer
}

func NewClient(
	cfg core.Config,
	rest *transport.RESTAdapter,
	tokens core.TokenSource,
	store core.CredentialStore,
	opts ...Option,
) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, core.DependencyError("token source")
	}
	if store == nil {
		return nil, core.DependencyError("credential store")
	}
	if rest == nil {
		rest = transport.NewRESTAdapterFromConfig(nil, cfg.HTTP)
	}
	location, err := cfg.Interruptions.Location()
	if err != nil {
		return nil, err
	}
	settings := resolveOptions("marketplace.client", opts)
	return &Client{
		cfg:      cfg,
		rest:     rest,
		tokens:   tokens,
		store:    store,
		clock:    settings.clock,
		location: location,
		observer: settings.observer(),
	}, nil
}

type apiCall struct {
	merchantID string
	endpoint   string
	method     string
	url        string
	body       any
	expected   int
	// accepted lists extra success codes returned as-is, e.g. 204 on polling.
	accepted []int
}

func (c *Client) do(ctx context.Context, call apiCall) (res transport.Response, err error) {
	startedAt := time.Now()
	defer func() {
		c.observer.ObserveOperation(ctx, startedAt, "ifood_"+call.endpoint, err, map[string]any{
			"merchant_id": call.merchantID,
			"provider_id": c.cfg.Provider.ID,
			"status_code": res.StatusCode,
		})
	}()

	token, err := c.bearer(ctx, call.merchantID)
	if err != nil {
		return transport.Response{}, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"Accept":        "application/json",
	}
	var payload []byte
	if call.body != nil {
		payload, err = json.Marshal(call.body)
		if err != nil {
			return transport.Response{}, core.InternalError(err, "marketplace: encode request body")
		}
		headers["Content-Type"] = "application/json"
	}

	res, err = c.rest.Do(ctx, transport.Request{
		Endpoint: call.endpoint,
		Method:   call.method,
		URL:      call.url,
		Headers:  headers,
		Body:     payload,
	})
	if err != nil {
		return transport.Response{}, err
	}
	for _, status := range call.accepted {
		if res.StatusCode == status {
			return res, nil
		}
	}
	if err := transport.Expect(call.endpoint, transport.EndpointAPI, res, call.expected); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Client) bearer(ctx context.Context, merchantID string) (string, error) {
	result, err := c.tokens.GetValidToken(ctx, merchantID)
	if err != nil {
		return "", err
	}
	if !result.OK() {
		return "", core.NotReadyError(merchantID, "token status "+string(result.Status))
	}
	return result.Token, nil
}

func (c *Client) url(path string, segments ...string) string {
	return joinURL(c.cfg.Provider.BaseURL, append([]string{path}, segments...)...)
}

func decodeJSON(endpoint string, res transport.Response, target any) error {
	if err := json.Unmarshal(res.Body, target); err != nil {
		return core.ProviderServerError(endpoint, res.StatusCode, "malformed response body")
	}
	return nil
}
