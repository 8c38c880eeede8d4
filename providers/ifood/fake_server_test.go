package ifood

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/transport"
)

type fakeMarketplace struct {
	mu              sync.Mutex
	t               *testing.T
	interruptions   map[string]interruptionPayload
	events          []map[string]any
	acked           [][]string
	merchantLookups int
	tokenForms      []map[string]string
	tokenStatus     int
	orderActions    []string
	lastAuth        string
	statusBody      string
}

func newFakeMarketplace(t *testing.T) (*fakeMarketplace, *httptest.Server) {
	fake := &fakeMarketplace{
		t:             t,
		interruptions: map[string]interruptionPayload{},
		tokenStatus:   http.StatusOK,
	}
	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeMarketplace) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	if !strings.HasPrefix(path, "/authentication/") {
		f.lastAuth = r.Header.Get("Authorization")
	}
	switch {
	case path == pathUserCode:
		_ = r.ParseForm()
		if r.PostForm.Get("clientId") != "client-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userCode":                  "ABCD-EFGH",
			"authorizationCodeVerifier": "verifier-1",
			"verificationUrl":           "https://portal.example.com/apps/code",
			"verificationUrlComplete":   "https://portal.example.com/apps/code?c=ABCD-EFGH",
			"expiresIn":                 600,
		})
	case path == pathToken:
		_ = r.ParseForm()
		form := map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		f.tokenForms = append(f.tokenForms, form)
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"rejected"}`))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  "access-" + form["grantType"],
			"refreshToken": "refresh-next",
			"type":         "bearer",
			"expiresIn":    21600,
		})
	case path == pathMerchants:
		f.merchantLookups++
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "ext-merchant", "name": "Cantina"}})
	case path == pathMerchants+"/ext-merchant/status":
		body := f.statusBody
		if body == "" {
			body = `[{"operation":"delivery","state":"OK","validations":[{"id":"v1","code":"is.connected","state":"OK"}]}]`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	case path == pathMerchants+"/ext-merchant/interruptions" && r.Method == http.MethodGet:
		list := make([]interruptionPayload, 0, len(f.interruptions))
		for _, item := range f.interruptions {
			list = append(list, item)
		}
		writeJSON(w, http.StatusOK, list)
	case path == pathMerchants+"/ext-merchant/interruptions" && r.Method == http.MethodPost:
		var payload interruptionPayload
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil || payload.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.interruptions[payload.ID] = payload
		writeJSON(w, http.StatusCreated, payload)
	case strings.HasPrefix(path, pathMerchants+"/ext-merchant/interruptions/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(path, pathMerchants+"/ext-merchant/interruptions/")
		if _, ok := f.interruptions[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.interruptions, id)
		w.WriteHeader(http.StatusNoContent)
	case path == pathEventsPolling:
		if len(f.events) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, f.events)
	case path == pathEventsAck:
		var payload []ackPayload
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		ids := []string{}
		for _, item := range payload {
			ids = append(ids, item.ID)
		}
		f.acked = append(f.acked, ids)
		w.WriteHeader(http.StatusAccepted)
	case strings.HasPrefix(path, pathOrders+"/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(path, pathOrders+"/")
		writeJSON(w, http.StatusOK, map[string]any{
			"id":        id,
			"displayId": "1234",
			"orderType": "DELIVERY",
			"createdAt": "2026-03-01T12:00:00Z",
			"merchant":  map[string]any{"id": "ext-merchant"},
		})
	case strings.HasPrefix(path, pathOrders+"/") && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.orderActions = append(f.orderActions, strings.TrimPrefix(path, pathOrders+"/")+" "+string(body))
		if strings.HasPrefix(path, pathOrders+"/missing/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type staticTokenSource struct {
	mu     sync.Mutex
	result core.TokenResult
	err    error
	calls  int
}

func (s *staticTokenSource) GetValidToken(_ context.Context, merchantID string) (core.TokenResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	result := s.result
	result.MerchantID = merchantID
	return result, s.err
}

func testConfig(baseURL string) core.Config {
	cfg := core.DefaultConfig()
	cfg.Provider.BaseURL = baseURL
	cfg.Provider.ClientID = "client-1"
	cfg.Provider.ClientSecret = "secret-1"
	return cfg
}

func seededStore(t *testing.T) *core.MemoryCredentialStore {
	t.Helper()
	store := core.NewMemoryCredentialStore()
	if _, err := store.SaveUserCode(context.Background(), "m1", "USER", "verifier"); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return store
}

func newTestClient(t *testing.T, server *httptest.Server, now time.Time) (*Client, *staticTokenSource, *core.MemoryCredentialStore) {
	t.Helper()
	store := seededStore(t)
	expiresAt := now.Add(6 * time.Hour)
	tokens := &staticTokenSource{result: core.TokenResult{Token: "bearer-1", ExpiresAt: &expiresAt, Status: core.TokenStatusOK}}
	client, err := NewClient(testConfig(server.URL), transport.NewRESTAdapter(server.Client()), tokens, store,
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, tokens, store
}
