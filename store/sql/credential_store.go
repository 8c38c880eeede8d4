package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one row per merchant. Token writes are a single
// UPDATE so access token, refresh token and expiry change together.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

type CredentialStoreOption func(*CredentialStore)

// WithSecretProvider encrypts access and refresh tokens at rest.
func WithSecretProvider(secrets core.SecretProvider) CredentialStoreOption {
	return func(s *CredentialStore) {
		s.secrets = secrets
	}
}

func WithNow(now func() time.Time) CredentialStoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCredentialStore(db *bun.DB, opts ...CredentialStoreOption) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	store := &CredentialStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) Get(ctx context.Context, merchantID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("merchant_id", "=", strings.TrimSpace(merchantID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	return s.toDomain(ctx, records[0])
}

// SaveUserCode creates the merchant row or restarts its authorization flow.
func (s *CredentialStore) SaveUserCode(
	ctx context.Context,
	merchantID string,
	userCode string,
	verifier string,
) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return core.Credential{}, core.BadInputError("merchant_id", "merchant id is required")
	}
	now := s.now()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		result, err := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("user_code = ?", userCode).
			Set("auth_code_verifier = ?", verifier).
			Set("updated_at = ?", now).
			Set("version = version + 1").
			Where("merchant_id = ?", merchantID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected(result) > 0 {
			return nil
		}
		_, err = s.repo.CreateTx(ctx, tx, &credentialRecord{
			ID:               uuid.NewString(),
			MerchantID:       merchantID,
			UserCode:         userCode,
			AuthCodeVerifier: verifier,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		return err
	})
	if err != nil {
		return core.Credential{}, err
	}
	return s.Get(ctx, merchantID)
}

// SaveAuthCode stores a new authorization code and clears any token pair so
// the next token request exchanges the code.
func (s *CredentialStore) SaveAuthCode(ctx context.Context, merchantID string, authCode string) (core.Credential, error) {
	return s.update(ctx, merchantID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("auth_code = ?", authCode).
			Set("access_token = ''").
			Set("refresh_token = ''").
			Set("tokens_encrypted = ?", false).
			Set("expires_at = NULL")
	})
}

func (s *CredentialStore) SaveTokens(ctx context.Context, merchantID string, tokens core.TokenSet) (core.Credential, error) {
	if strings.TrimSpace(tokens.AccessToken) == "" || tokens.ExpiresAt.IsZero() {
		return core.Credential{}, core.BadInputError("tokens", "access token and expiry are required")
	}
	access, err := s.seal(ctx, tokens.AccessToken)
	if err != nil {
		return core.Credential{}, err
	}
	refresh, err := s.seal(ctx, tokens.RefreshToken)
	if err != nil {
		return core.Credential{}, err
	}
	expiresAt := tokens.ExpiresAt.UTC()
	return s.update(ctx, merchantID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("access_token = ?", access).
			Set("refresh_token = ?", refresh).
			Set("tokens_encrypted = ?", s.secrets != nil).
			Set("expires_at = ?", expiresAt)
	})
}

func (s *CredentialStore) SaveMerchantProfile(
	ctx context.Context,
	merchantID string,
	profile core.MerchantProfile,
) (core.Credential, error) {
	return s.update(ctx, merchantID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("external_merchant_id = ?", strings.TrimSpace(profile.ExternalMerchantID)).
			Set("merchant_name = ?", strings.TrimSpace(profile.Name))
	})
}

func (s *CredentialStore) update(
	ctx context.Context,
	merchantID string,
	apply func(*bun.UpdateQuery) *bun.UpdateQuery,
) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return core.Credential{}, core.BadInputError("merchant_id", "merchant id is required")
	}
	// every write bumps version
	query := s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("updated_at = ?", s.now()).
		Set("version = version + 1").
		Where("merchant_id = ?", merchantID)
	result, err := apply(query).Exec(ctx)
	if err != nil {
		return core.Credential{}, err
	}
	if affected(result) == 0 {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	return s.Get(ctx, merchantID)
}

func (s *CredentialStore) toDomain(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	if record == nil {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	credential := core.Credential{
		MerchantID:         record.MerchantID,
		ExternalMerchantID: record.ExternalMerchantID,
		MerchantName:       record.MerchantName,
		UserCode:           record.UserCode,
		AuthCodeVerifier:   record.AuthCodeVerifier,
		AuthCode:           record.AuthCode,
		AccessToken:        record.AccessToken,
		RefreshToken:       record.RefreshToken,
		Version:            record.Version,
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
	}
	if record.ExpiresAt != nil {
		expiresAt := record.ExpiresAt.UTC()
		credential.ExpiresAt = &expiresAt
	}
	if record.TokensEncrypted {
		var err error
		if credential.AccessToken, err = s.open(ctx, record.AccessToken); err != nil {
			return core.Credential{}, err
		}
		if credential.RefreshToken, err = s.open(ctx, record.RefreshToken); err != nil {
			return core.Credential{}, err
		}
	}
	return credential, nil
}

func (s *CredentialStore) seal(ctx context.Context, value string) (string, error) {
	if s.secrets == nil || value == "" {
		return value, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", core.InternalError(err, "sqlstore: encrypt token")
	}
	return string(sealed), nil
}

func (s *CredentialStore) open(ctx context.Context, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if s.secrets == nil {
		return "", core.DependencyError("secret provider")
	}
	plain, err := s.secrets.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", core.InternalError(err, "sqlstore: decrypt token")
	}
	return string(plain), nil
}

func affected(result sql.Result) int64 {
	if result == nil {
		return 0
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return rows
}
