package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:marketplace_credentials,alias:mc"`

	ID                 string     `bun:"id,pk"`
	MerchantID         string     `bun:"merchant_id,notnull"`
	ExternalMerchantID string     `bun:"external_merchant_id,notnull"`
	MerchantName       string     `bun:"merchant_name,notnull"`
	UserCode           string     `bun:"user_code,notnull"`
	AuthCodeVerifier   string     `bun:"auth_code_verifier,notnull"`
	AuthCode           string     `bun:"auth_code,notnull"`
	AccessToken        string     `bun:"access_token,notnull"`
	RefreshToken       string     `bun:"refresh_token,notnull"`
	TokensEncrypted    bool       `bun:"tokens_encrypted,notnull"`
	ExpiresAt          *time.Time `bun:"expires_at,nullzero"`
	Version            int        `bun:"version,notnull"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type eventClaimRecord struct {
	bun.BaseModel `bun:"table:marketplace_event_claims,alias:mec"`

	ID             string     `bun:"id,pk"`
	ClaimKey       string     `bun:"claim_key,notnull"`
	ClaimID        string     `bun:"claim_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	RetainUntil    *time.Time `bun:"retain_until,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
