package ifood

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/transport"
)

func TestClient_PollEventsNoContentIsEmpty(t *testing.T) {
	_, server := newFakeMarketplace(t)
	client, _, _ := newTestClient(t, server, time.Now().UTC())

	events, err := client.PollEvents(context.Background(), "m1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestClient_PollEventsDecodesBatch(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	fake.events = []map[string]any{
		{"id": "e1", "code": "PLC", "fullCode": "PLACED", "orderId": "o1", "createdAt": "2026-03-01T12:00:00.000Z"},
		{"id": "e2", "code": "ADR", "fullCode": "ASSIGN_DRIVER", "orderId": "o1", "metadata": map[string]any{"workerName": "Ana"}},
	}
	client, _, _ := newTestClient(t, server, time.Now().UTC())

	events, err := client.PollEvents(context.Background(), "m1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(events) != 2 || events[0].FullCode != core.EventPlaced || events[1].Metadata["workerName"] != "Ana" {
		t.Fatalf("unexpected events %+v", events)
	}
	if fake.lastAuth != "Bearer bearer-1" {
		t.Fatalf("expected bearer header, got %q", fake.lastAuth)
	}
}

func TestClient_AcknowledgeEvents(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	client, tokens, _ := newTestClient(t, server, time.Now().UTC())

	if err := client.AcknowledgeEvents(context.Background(), "m1", nil); err != nil {
		t.Fatalf("empty ack: %v", err)
	}
	if len(fake.acked) != 0 || tokens.calls != 0 {
		t.Fatalf("expected no call for empty ack, got acked=%v token calls=%d", fake.acked, tokens.calls)
	}

	if err := client.AcknowledgeEvents(context.Background(), "m1", []string{"e1", "e2"}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(fake.acked) != 1 || strings.Join(fake.acked[0], ",") != "e1,e2" {
		t.Fatalf("unexpected ack payloads %v", fake.acked)
	}
}

func TestClient_TokenNotOKHaltsCall(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	client, tokens, _ := newTestClient(t, server, time.Now().UTC())
	tokens.result = core.TokenResult{Status: core.TokenStatusExpired}

	_, err := client.PollEvents(context.Background(), "m1")
	if !core.IsKind(err, core.KindNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if fake.lastAuth != "" {
		t.Fatalf("expected no authenticated request, got %q", fake.lastAuth)
	}
}

func TestClient_PauseThenUnpauseLeavesNoInterruptions(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client, _, _ := newTestClient(t, server, now)
	ctx := context.Background()

	interruption, err := client.Pause(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if interruption.ID != "pausa-manual-1772366400" || interruption.Description != "Pausa Manual" {
		t.Fatalf("unexpected interruption %+v", interruption)
	}
	if !interruption.End.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("expected 4h interruption, got end %s", interruption.End)
	}
	if interruption.Start.Location().String() != core.DefaultInterruptionTimeZone {
		t.Fatalf("expected start in %s, got %s", core.DefaultInterruptionTimeZone, interruption.Start.Location())
	}
	stored := fake.interruptions[interruption.ID]
	if stored.Start != "2026-03-01T09:00:00" || stored.End != "2026-03-01T13:00:00" {
		t.Fatalf("expected Sao Paulo wall-clock timestamps, got %+v", stored)
	}

	listed, err := client.ListInterruptions(ctx, "m1")
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one interruption, got %+v err=%v", listed, err)
	}
	if !listed[0].Start.Equal(now) || !listed[0].End.Equal(now.Add(4*time.Hour)) {
		t.Fatalf("expected listed window to round-trip, got %s..%s", listed[0].Start, listed[0].End)
	}

	removed, err := client.Unpause(ctx, "m1")
	if err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removal, got %d", removed)
	}
	listed, err = client.ListInterruptions(ctx, "m1")
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected empty interruption list, got %+v err=%v", listed, err)
	}
}

func TestClient_PauseUsesConfiguredTimeZone(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testConfig(server.URL)
	cfg.Interruptions.TimeZone = "Asia/Tokyo"
	client, err := NewClient(cfg, transport.NewRESTAdapter(server.Client()), &staticTokenSource{
		result: core.TokenResult{Token: "bearer-1", Status: core.TokenStatusOK},
	}, seededStore(t), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	interruption, err := client.Pause(context.Background(), "m1", time.Hour)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	stored := fake.interruptions[interruption.ID]
	if stored.Start != "2026-03-01T21:00:00" || stored.End != "2026-03-01T22:00:00" {
		t.Fatalf("expected Tokyo wall-clock timestamps, got %+v", stored)
	}

	cfg.Interruptions.TimeZone = "Mars/Olympus"
	if _, err := NewClient(cfg, nil, &staticTokenSource{}, seededStore(t)); err == nil {
		t.Fatalf("expected unknown time zone to be rejected")
	}
}

func TestClient_ResolveMerchantCachesProfile(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	client, _, store := newTestClient(t, server, time.Now().UTC())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		profile, err := client.ResolveMerchant(ctx, "m1")
		if err != nil {
			t.Fatalf("resolve merchant: %v", err)
		}
		if profile.ExternalMerchantID != "ext-merchant" || profile.Name != "Cantina" {
			t.Fatalf("unexpected profile %+v", profile)
		}
	}
	if fake.merchantLookups != 1 {
		t.Fatalf("expected one merchant lookup, got %d", fake.merchantLookups)
	}
	credential, _ := store.Get(ctx, "m1")
	if credential.ExternalMerchantID != "ext-merchant" || credential.MerchantName != "Cantina" {
		t.Fatalf("expected profile stored on credential, got %+v", credential)
	}
}

func TestClient_Availability(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	client, _, _ := newTestClient(t, server, time.Now().UTC())

	availability, err := client.Availability(context.Background(), "m1")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if !availability.Available || len(availability.Validations) != 1 {
		t.Fatalf("expected available merchant, got %+v", availability)
	}

	fake.statusBody = `[{"operation":"delivery","state":"ERROR","validations":[
		{"id":"v1","code":"is.connected","state":"WARNING"},
		{"id":"v2","code":"opening-hours","state":"CLOSED","message":{"title":"Fechado","subtitle":"Fora do horario"}}]}]`
	availability, err = client.Availability(context.Background(), "m1")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if availability.Available {
		t.Fatalf("expected unavailable merchant, got %+v", availability)
	}
	if availability.Validations[1].Message != "Fechado - Fora do horario" {
		t.Fatalf("unexpected validation message %q", availability.Validations[1].Message)
	}
}

func TestClient_OrderActions(t *testing.T) {
	fake, server := newFakeMarketplace(t)
	client, _, _ := newTestClient(t, server, time.Now().UTC())
	ctx := context.Background()

	detail, err := client.FetchOrder(ctx, "m1", "o1")
	if err != nil {
		t.Fatalf("fetch order: %v", err)
	}
	if detail.ID != "o1" || detail.DisplayID != "1234" || detail.MerchantID != "ext-merchant" || detail.CreatedAt == nil {
		t.Fatalf("unexpected detail %+v", detail)
	}

	if err := client.ConfirmOrder(ctx, "m1", "o1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := client.RequestCancellation(ctx, "m1", "o1", "", ""); err != nil {
		t.Fatalf("request cancellation: %v", err)
	}
	if err := client.Dispatch(ctx, "m1", "o1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(fake.orderActions) != 3 {
		t.Fatalf("expected three actions, got %v", fake.orderActions)
	}
	if !strings.HasPrefix(fake.orderActions[1], "o1/requestCancellation ") ||
		!strings.Contains(fake.orderActions[1], `"cancellationCode":"509"`) ||
		!strings.Contains(fake.orderActions[1], `"reason":"DIFICULDADES INTERNAS DO RESTAURANTE"`) {
		t.Fatalf("unexpected cancellation request %q", fake.orderActions[1])
	}

	err = client.ConfirmOrder(ctx, "m1", "missing")
	if !core.IsKind(err, core.KindClientRequestError) {
		t.Fatalf("expected client request error, got %v", err)
	}
}
