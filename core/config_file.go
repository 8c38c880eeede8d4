package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// durationKeys lists the dotted config paths decoded as time.Duration.
var durationKeys = []string{
	"http.request_timeout",
	"tokens.lock_ttl",
	"events.claim_lease",
	"events.claim_ttl",
	"events.poll_lock_ttl",
	"interruptions.default_duration",
}

// YAMLConfigLoader reads raw config from a YAML file. A missing file yields
// an empty map when Optional is set.
type YAMLConfigLoader struct {
	Path     string
	Optional bool
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %q: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %q: %w", path, err)
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, fmt.Errorf("core: config %q: %w", path, err)
	}
	return raw, nil
}

// EnvConfigLoader maps process environment variables onto provider settings.
type EnvConfigLoader struct {
	Prefix string
	Lookup func(string) (string, bool)
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := strings.TrimSpace(l.Prefix)
	if prefix == "" {
		prefix = "MARKETPLACE_"
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	provider := map[string]any{}
	for env, key := range map[string]string{
		"CLIENT_ID":     "client_id",
		"CLIENT_SECRET": "client_secret",
		"BASE_URL":      "base_url",
	} {
		if value, ok := lookup(prefix + env); ok && strings.TrimSpace(value) != "" {
			provider[key] = strings.TrimSpace(value)
		}
	}
	if len(provider) == 0 {
		return map[string]any{}, nil
	}
	return map[string]any{"provider": provider}, nil
}

// ChainConfigLoader merges loaders in order; later loaders win.
type ChainConfigLoader []RawConfigLoader

func (c ChainConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	merged := map[string]any{}
	for _, loader := range c {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeRaw(merged, raw)
	}
	return merged, nil
}

func mergeRaw(dst map[string]any, src map[string]any) {
	for key, value := range src {
		srcSection, srcOK := value.(map[string]any)
		dstSection, dstOK := dst[key].(map[string]any)
		if srcOK && dstOK {
			mergeRaw(dstSection, srcSection)
			continue
		}
		dst[key] = value
	}
}

func normalizeDurations(raw map[string]any) error {
	for _, path := range durationKeys {
		parts := strings.Split(path, ".")
		section := raw
		for _, part := range parts[:len(parts)-1] {
			next, ok := section[part].(map[string]any)
			if !ok {
				section = nil
				break
			}
			section = next
		}
		if section == nil {
			continue
		}
		key := parts[len(parts)-1]
		value, ok := section[key].(string)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		section[key] = parsed
	}
	return nil
}
