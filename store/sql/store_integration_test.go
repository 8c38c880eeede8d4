package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/security"
	sqlstore "github.com/goliatone/go-marketplace/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
)

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client := newSQLiteClient(t)

	for _, table := range []string{"marketplace_credentials", "marketplace_event_claims"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCredentialStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newCredentialStore(t)

	if _, err := store.Get(ctx, "m-1"); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected not found before the flow starts, got %v", err)
	}
	if _, err := store.SaveAuthCode(ctx, "m-1", "auth"); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected auth code without a row to fail, got %v", err)
	}

	created, err := store.SaveUserCode(ctx, "m-1", "USER-1", "verifier-1")
	if err != nil {
		t.Fatalf("save user code: %v", err)
	}
	if created.UserCode != "USER-1" || created.Ready() {
		t.Fatalf("unexpected credential after user code %+v", created)
	}
	restarted, err := store.SaveUserCode(ctx, "m-1", "USER-2", "verifier-2")
	if err != nil {
		t.Fatalf("restart user code: %v", err)
	}
	if restarted.UserCode != "USER-2" || restarted.AuthCodeVerifier != "verifier-2" {
		t.Fatalf("expected restart to overwrite the code, got %+v", restarted)
	}
	if created.Version != 1 || restarted.Version != 2 {
		t.Fatalf("expected user code writes to bump version, got %d -> %d", created.Version, restarted.Version)
	}

	withCode, err := store.SaveAuthCode(ctx, "m-1", "auth-1")
	if err != nil {
		t.Fatalf("save auth code: %v", err)
	}
	if !withCode.Ready() || withCode.HasToken() {
		t.Fatalf("expected ready credential without token, got %+v", withCode)
	}
	if withCode.Version != restarted.Version+1 {
		t.Fatalf("expected auth code write to bump version, got %d -> %d", restarted.Version, withCode.Version)
	}

	expiresAt := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	withTokens, err := store.SaveTokens(ctx, "m-1", core.TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	if withTokens.AccessToken != "access-1" || withTokens.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected token pair %+v", withTokens)
	}
	if withTokens.ExpiresAt == nil || !withTokens.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expiry %s, got %v", expiresAt, withTokens.ExpiresAt)
	}
	if withTokens.Version != withCode.Version+1 {
		t.Fatalf("expected token write to bump version, got %d -> %d", withCode.Version, withTokens.Version)
	}

	profiled, err := store.SaveMerchantProfile(ctx, "m-1", core.MerchantProfile{ExternalMerchantID: "ext-1", Name: "Cantina"})
	if err != nil {
		t.Fatalf("save merchant profile: %v", err)
	}
	if profiled.ExternalMerchantID != "ext-1" || profiled.MerchantName != "Cantina" || profiled.AccessToken != "access-1" {
		t.Fatalf("expected profile write to keep tokens, got %+v", profiled)
	}

	reauthorized, err := store.SaveAuthCode(ctx, "m-1", "auth-2")
	if err != nil {
		t.Fatalf("save second auth code: %v", err)
	}
	if reauthorized.HasToken() || reauthorized.RefreshToken != "" || reauthorized.ExpiresAt != nil {
		t.Fatalf("expected new auth code to clear tokens, got %+v", reauthorized)
	}
	if reauthorized.Version != profiled.Version+1 {
		t.Fatalf("expected every write to bump version, got %d -> %d", profiled.Version, reauthorized.Version)
	}
}

func TestCredentialStore_SaveTokensRequiresPair(t *testing.T) {
	ctx := context.Background()
	store := newCredentialStore(t)
	if _, err := store.SaveUserCode(ctx, "m-1", "USER", "verifier"); err != nil {
		t.Fatalf("save user code: %v", err)
	}
	if _, err := store.SaveTokens(ctx, "m-1", core.TokenSet{AccessToken: "access"}); err == nil {
		t.Fatalf("expected token without expiry to be rejected")
	}
	if _, err := store.SaveTokens(ctx, "unknown", core.TokenSet{AccessToken: "a", ExpiresAt: time.Now()}); !errors.Is(err, core.ErrCredentialNotFound) {
		t.Fatalf("expected unknown merchant to fail, got %v", err)
	}
}

func TestCredentialStore_EncryptsTokensAtRest(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)
	secrets, err := security.NewAppKeySecretProviderFromString("store-test-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	store, err := sqlstore.NewCredentialStore(client.DB(), sqlstore.WithSecretProvider(secrets))
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	if _, err := store.SaveUserCode(ctx, "m-1", "USER", "verifier"); err != nil {
		t.Fatalf("save user code: %v", err)
	}
	saved, err := store.SaveTokens(ctx, "m-1", core.TokenSet{
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	if saved.AccessToken != "plain-access" || saved.RefreshToken != "plain-refresh" {
		t.Fatalf("expected decrypted tokens on read, got %+v", saved)
	}

	var rawAccess string
	if err := client.DB().NewRaw(
		"SELECT access_token FROM marketplace_credentials WHERE merchant_id = ?", "m-1",
	).Scan(ctx, &rawAccess); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if rawAccess == "plain-access" || !security.IsSealed([]byte(rawAccess)) {
		t.Fatalf("expected sealed token at rest, got %q", rawAccess)
	}

	plainStore, err := sqlstore.NewCredentialStore(client.DB())
	if err != nil {
		t.Fatalf("new plain store: %v", err)
	}
	if _, err := plainStore.Get(ctx, "m-1"); err == nil {
		t.Fatalf("expected reading sealed tokens without a secret provider to fail")
	}
}

func TestCredentialStore_ConcurrentTokenWritesStayPaired(t *testing.T) {
	ctx := context.Background()
	store := newCredentialStore(t)
	if _, err := store.SaveUserCode(ctx, "m-1", "USER", "verifier"); err != nil {
		t.Fatalf("save user code: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.SaveTokens(ctx, "m-1", core.TokenSet{
				AccessToken:  fmt.Sprintf("access-%d", i),
				RefreshToken: fmt.Sprintf("refresh-%d", i),
				ExpiresAt:    time.Now().Add(time.Hour),
			})
		}(i)
	}
	wg.Wait()

	credential, err := store.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var n int
	if _, err := fmt.Sscanf(credential.AccessToken, "access-%d", &n); err != nil {
		t.Fatalf("unexpected access token %q", credential.AccessToken)
	}
	if credential.RefreshToken != fmt.Sprintf("refresh-%d", n) {
		t.Fatalf("expected paired tokens, got %q / %q", credential.AccessToken, credential.RefreshToken)
	}
	if credential.Version != 9 {
		t.Fatalf("expected the user code and 8 token writes counted, got version %d", credential.Version)
	}
}

func TestEventLedger_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := newEventLedger(t, time.Hour)
	key := "m-1:e-1"

	claimID, accepted, err := ledger.Claim(ctx, key, time.Minute)
	if err != nil || !accepted || claimID == "" {
		t.Fatalf("expected first claim accepted, got %q %v %v", claimID, accepted, err)
	}
	if _, _, err := ledger.Claim(ctx, key, time.Minute); !errors.Is(err, core.ErrClaimInFlight) {
		t.Fatalf("expected in-flight claim to be refused, got %v", err)
	}

	if err := ledger.Fail(ctx, claimID, errors.New("bridge unavailable")); err != nil {
		t.Fatalf("fail claim: %v", err)
	}
	status, attempts, err := ledger.Status(ctx, key)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != core.ClaimStatusRetryReady || attempts != 1 {
		t.Fatalf("expected retry_ready after one attempt, got %s/%d", status, attempts)
	}

	retryID, accepted, err := ledger.Claim(ctx, key, time.Minute)
	if err != nil || !accepted {
		t.Fatalf("expected retry claim accepted, got %v %v", accepted, err)
	}
	if retryID == claimID {
		t.Fatalf("expected a new claim id on retry")
	}
	if err := ledger.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete stale claim: %v", err)
	}
	if status, _, _ := ledger.Status(ctx, key); status != core.ClaimStatusProcessing {
		t.Fatalf("expected stale claim id to be ignored, got %s", status)
	}
	if err := ledger.Complete(ctx, retryID); err != nil {
		t.Fatalf("complete claim: %v", err)
	}

	if _, accepted, err := ledger.Claim(ctx, key, time.Minute); err != nil || accepted {
		t.Fatalf("expected completed event to be skipped, got %v %v", accepted, err)
	}
	status, attempts, err = ledger.Status(ctx, key)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != core.ClaimStatusCompleted || attempts != 2 {
		t.Fatalf("expected completed after two attempts, got %s/%d", status, attempts)
	}
}

func TestEventLedger_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	ctx := context.Background()
	ledger := newEventLedger(t, time.Hour)

	first, accepted, err := ledger.Claim(ctx, "m-1:e-2", time.Millisecond)
	if err != nil || !accepted {
		t.Fatalf("first claim: %v %v", accepted, err)
	}
	time.Sleep(20 * time.Millisecond)

	second, accepted, err := ledger.Claim(ctx, "m-1:e-2", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("expected expired lease to be reclaimed, got %v %v", accepted, err)
	}
	if first == second {
		t.Fatalf("expected takeover to issue a new claim id")
	}
}

func TestEventLedger_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	ledger := newEventLedger(t, time.Millisecond)

	claimID, _, err := ledger.Claim(ctx, "m-1:e-3", time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, _, err := ledger.Claim(ctx, "m-1:e-4", time.Minute); err != nil {
		t.Fatalf("claim in-flight event: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	purged, err := ledger.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged claim, got %d", purged)
	}
	if _, _, err := ledger.Status(ctx, "m-1:e-3"); err == nil {
		t.Fatalf("expected purged claim to be gone")
	}
	if status, _, err := ledger.Status(ctx, "m-1:e-4"); err != nil || status != core.ClaimStatusProcessing {
		t.Fatalf("expected in-flight claim to survive purge, got %s %v", status, err)
	}
}

func TestRepositoryFactory_BuildsStores(t *testing.T) {
	client := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	if factory.CredentialStore() == nil || factory.EventLedger() == nil || factory.DB() == nil {
		t.Fatalf("expected factory to build every store")
	}
	if _, ok := factory.CredentialStore().(*sqlstore.CredentialStore); !ok {
		t.Fatalf("expected uncached credential store, got %T", factory.CredentialStore())
	}
	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected nil db to fail")
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.DatabaseConfig{Driver: "sqlite3"}); err == nil {
		t.Fatalf("expected missing dsn to fail")
	}
}

func newCredentialStore(t *testing.T) *sqlstore.CredentialStore {
	t.Helper()
	store, err := sqlstore.NewCredentialStore(newSQLiteClient(t).DB())
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	return store
}

func newEventLedger(t *testing.T, retention time.Duration) *sqlstore.EventLedger {
	t.Helper()
	ledger, err := sqlstore.NewEventLedger(newSQLiteClient(t).DB(), retention)
	if err != nil {
		t.Fatalf("new event ledger: %v", err)
	}
	return ledger
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf(
		"file:marketplace-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.OpenSQLite(context.Background(), dsn, true)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
