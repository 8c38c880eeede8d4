package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-marketplace/core"
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	aead    cipher.AEAD
}

// AppKeySecretProvider seals stored tokens with AES-GCM under an application
// key. Retired keys stay available for Decrypt so rotating the active key
// does not strand tokens written before the rotation.
type AppKeySecretProvider struct {
	active  appKey
	retired []appKey
	err     error
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.active.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.active.version = version
		}
	}
}

// WithRetiredKey registers a previous key that may still open values but is
// never used to seal.
func WithRetiredKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		key, err := newAppKey(strings.TrimSpace(id), version, keyMaterial)
		if err != nil {
			provider.err = err
			return
		}
		provider.retired = append(provider.retired, key)
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	active, err := newAppKey("app-key", 1, keyMaterial)
	if err != nil {
		return nil, err
	}
	provider := &AppKeySecretProvider{active: active}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.err != nil {
		return nil, provider.err
	}
	for _, retired := range provider.retired {
		if retired.id == provider.active.id && retired.version == provider.active.version {
			return nil, fmt.Errorf("security: retired key %s/v%d collides with the active key", retired.id, retired.version)
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, p.active.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := p.active.aead.Seal(nil, nonce, plaintext, p.active.additionalData())
	return encodeEnvelope(envelope{
		KeyID:      p.active.id,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, ok := p.keyFor(env.KeyID, env.Version)
	if !ok {
		return nil, fmt.Errorf("security: no key for %q version %d", env.KeyID, env.Version)
	}
	nonce, err := decodePayload("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload("ciphertext payload", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := key.aead.Open(nil, nonce, payload, key.additionalData())
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether a sealed value was written under a key other
// than the active one.
func (p *AppKeySecretProvider) NeedsRotation(ciphertext []byte) (bool, error) {
	metadata, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return metadata.KeyID != p.active.id || metadata.Version != p.active.version, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func (p *AppKeySecretProvider) keyFor(id string, version int) (appKey, bool) {
	if id == p.active.id && version == p.active.version {
		return p.active, true
	}
	for _, retired := range p.retired {
		if retired.id == id && retired.version == version {
			return retired, true
		}
	}
	return appKey{}, false
}

// additionalData binds the key identity into the GCM tag so an envelope
// cannot be relabelled to another key.
func (k appKey) additionalData() []byte {
	return []byte(fmt.Sprintf("%s/v%d", k.id, k.version))
}

func newAppKey(id string, version int, keyMaterial []byte) (appKey, error) {
	material := bytes.TrimSpace(keyMaterial)
	if len(material) == 0 {
		return appKey{}, fmt.Errorf("security: key material is required")
	}
	if id == "" {
		return appKey{}, fmt.Errorf("security: key id is required")
	}
	if version <= 0 {
		return appKey{}, fmt.Errorf("security: key version must be positive")
	}
	block, err := aes.NewCipher(normalizeKey(material))
	if err != nil {
		return appKey{}, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return appKey{}, fmt.Errorf("security: create gcm: %w", err)
	}
	return appKey{id: id, version: version, aead: aead}, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
