package sqlstore

import "github.com/goliatone/go-marketplace/core"

var (
	_ core.CredentialStore       = (*CredentialStore)(nil)
	_ core.CredentialStore       = (*CachedCredentialStore)(nil)
	_ core.FreshCredentialReader = (*CachedCredentialStore)(nil)
	_ core.EventLedger           = (*EventLedger)(nil)
)
