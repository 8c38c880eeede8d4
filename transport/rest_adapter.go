package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketplace/core"
	"golang.org/x/time/rate"
)

const defaultRequestTimeout = 10 * time.Second
const defaultResponseBodyLimit int64 = 4 << 20

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Request struct {
	Endpoint             string
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// RESTAdapter executes bounded HTTP requests. Every call carries a timeout;
// failures below the HTTP layer come back as core transport errors.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Limiter              *rate.Limiter
}

type Option func(*RESTAdapter)

func WithTimeout(timeout time.Duration) Option {
	return func(a *RESTAdapter) {
		if timeout > 0 {
			a.Timeout = timeout
		}
	}
}

func WithMaxResponseBodyBytes(limit int64) Option {
	return func(a *RESTAdapter) {
		if limit > 0 {
			a.MaxResponseBodyBytes = limit
		}
	}
}

// WithRateLimit caps outbound requests per second; a non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *RESTAdapter) {
		if perSecond <= 0 {
			a.Limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		a.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithDefaultHeader(key string, value string) Option {
	return func(a *RESTAdapter) {
		if strings.TrimSpace(key) != "" {
			a.DefaultHeaders[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
}

func NewRESTAdapter(client HTTPDoer, opts ...Option) *RESTAdapter {
	if client == nil {
		client = &http.Client{}
	}
	adapter := &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		Timeout:              defaultRequestTimeout,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

// NewRESTAdapterFromConfig applies the http section of the integration
// config.
func NewRESTAdapterFromConfig(client HTTPDoer, cfg core.HTTPConfig) *RESTAdapter {
	return NewRESTAdapter(client,
		WithTimeout(cfg.RequestTimeout),
		WithMaxResponseBodyBytes(cfg.MaxBodyBytes),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	)
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if a == nil || a.Client == nil {
		return Response{}, core.DependencyError("rest adapter http client")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return Response{}, transportError(
			"transport: invalid request url",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"endpoint": endpoint, "url": strings.TrimSpace(req.URL)},
		)
	}

	if len(req.Query) > 0 {
		query := parsedURL.Query()
		for key, value := range req.Query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsedURL.RawQuery = query.Encode()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.Timeout
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.Limiter != nil {
		if err := a.Limiter.Wait(requestCtx); err != nil {
			return Response{}, core.TransportError(endpoint, err)
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), body)
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: create http request",
			http.StatusBadRequest,
			map[string]any{"endpoint": endpoint, "method": method},
		)
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, core.TransportError(endpoint, err)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, core.TransportError(endpoint, err)
	}
	if int64(len(payload)) > maxBodyBytes {
		return Response{}, core.TransportError(endpoint,
			fmt.Errorf("transport: response body exceeds limit of %d bytes", maxBodyBytes))
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Duration:   time.Since(startedAt),
	}, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultResponseBodyLimit
}
