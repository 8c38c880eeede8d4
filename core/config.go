package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	// interruption windows resolve America/Sao_Paulo on hosts without zoneinfo
	_ "time/tzdata"
)

const (
	DefaultProviderID      = "ifood"
	DefaultProviderBaseURL = "https://merchant-api.ifood.com.br"

	// DefaultInterruptionTimeZone is the zone interruption windows are
	// written in; the provider reads them as merchant wall-clock time.
	DefaultInterruptionTimeZone = "America/Sao_Paulo"
)

type ProviderConfig struct {
	ID           string `koanf:"id" mapstructure:"id"`
	BaseURL      string `koanf:"base_url" mapstructure:"base_url"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
}

type HTTPConfig struct {
	RequestTimeout    time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `koanf:"burst" mapstructure:"burst"`
}

type TokensConfig struct {
	LockTTL time.Duration `koanf:"lock_ttl" mapstructure:"lock_ttl"`
}

type EventsConfig struct {
	ClaimLease  time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
	ClaimTTL    time.Duration `koanf:"claim_ttl" mapstructure:"claim_ttl"`
	// PollLockTTL is the lease on one poll cycle. The poller renews it while
	// the cycle runs, so it bounds how long a crashed holder blocks the merchant.
	PollLockTTL time.Duration `koanf:"poll_lock_ttl" mapstructure:"poll_lock_ttl"`
}

type InterruptionsConfig struct {
	DefaultDuration time.Duration `koanf:"default_duration" mapstructure:"default_duration"`
	IDPrefix        string        `koanf:"id_prefix" mapstructure:"id_prefix"`
	Description     string        `koanf:"description" mapstructure:"description"`
	TimeZone        string        `koanf:"time_zone" mapstructure:"time_zone"`
}

type CancellationConfig struct {
	Reason string `koanf:"reason" mapstructure:"reason"`
	Code   string `koanf:"code" mapstructure:"code"`
}

type Config struct {
	ServiceName   string              `koanf:"service_name" mapstructure:"service_name"`
	Provider      ProviderConfig      `koanf:"provider" mapstructure:"provider"`
	HTTP          HTTPConfig          `koanf:"http" mapstructure:"http"`
	Tokens        TokensConfig        `koanf:"tokens" mapstructure:"tokens"`
	Events        EventsConfig        `koanf:"events" mapstructure:"events"`
	Interruptions InterruptionsConfig `koanf:"interruptions" mapstructure:"interruptions"`
	Cancellation  CancellationConfig  `koanf:"cancellation" mapstructure:"cancellation"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "marketplace",
		Provider: ProviderConfig{
			ID:      DefaultProviderID,
			BaseURL: DefaultProviderBaseURL,
		},
		HTTP: HTTPConfig{
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   4 << 20,
			Burst:          1,
		},
		Tokens: TokensConfig{
			LockTTL: 30 * time.Second,
		},
		Events: EventsConfig{
			ClaimLease:  2 * time.Minute,
			ClaimTTL:    24 * time.Hour,
			PollLockTTL: 2 * time.Minute,
		},
		Interruptions: InterruptionsConfig{
			DefaultDuration: 4 * time.Hour,
			IDPrefix:        "pausa-manual-",
			Description:     "Pausa Manual",
			TimeZone:        DefaultInterruptionTimeZone,
		},
		Cancellation: CancellationConfig{
			Reason: "DIFICULDADES INTERNAS DO RESTAURANTE",
			Code:   "509",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Provider.ID) == "" {
		return fmt.Errorf("core: provider.id is required")
	}
	baseURL := strings.TrimSpace(c.Provider.BaseURL)
	if baseURL == "" {
		return fmt.Errorf("core: provider.base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: provider.base_url %q is invalid", baseURL)
	}
	if c.HTTP.RequestTimeout < 0 {
		return fmt.Errorf("core: http.request_timeout must be positive")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("core: http.requests_per_second must not be negative")
	}
	if c.Interruptions.DefaultDuration < 0 {
		return fmt.Errorf("core: interruptions.default_duration must be positive")
	}
	if c.Events.PollLockTTL < 0 {
		return fmt.Errorf("core: events.poll_lock_ttl must be positive")
	}
	if _, err := c.Interruptions.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone, falling back to DefaultInterruptionTimeZone
// when unset.
func (c InterruptionsConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.TimeZone)
	if name == "" {
		name = DefaultInterruptionTimeZone
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("core: interruptions.time_zone %q is invalid: %w", name, err)
	}
	return location, nil
}

// RequireClientCredentials validates the fields only the token endpoints need.
func (c Config) RequireClientCredentials() error {
	if strings.TrimSpace(c.Provider.ClientID) == "" {
		return fmt.Errorf("core: provider.client_id is required")
	}
	if strings.TrimSpace(c.Provider.ClientSecret) == "" {
		return fmt.Errorf("core: provider.client_secret is required")
	}
	return nil
}
