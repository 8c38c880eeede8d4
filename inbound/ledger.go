package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

const (
	defaultClaimLease     = 2 * time.Minute
	defaultClaimRetention = 24 * time.Hour
)

// EventKey scopes an event id to its merchant.
func EventKey(merchantID string, eventID string) string {
	return strings.TrimSpace(merchantID) + ":" + strings.TrimSpace(eventID)
}

// StepKey names one side effect inside an event's handling.
func StepKey(merchantID string, eventID string, step string) string {
	return EventKey(merchantID, eventID) + "#" + strings.TrimSpace(step)
}

type claimEntry struct {
	Key            string
	Status         core.ClaimStatus
	ClaimID        string
	Attempts       int
	LeaseExpiresAt time.Time
	RetainUntil    time.Time
	LastError      string
}

// InMemoryEventLedger is a process-local core.EventLedger. Completed claims
// are kept for Retention so redelivered events are recognised.
type InMemoryEventLedger struct {
	Retention time.Duration
	Now       func() time.Time

	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
}

func NewInMemoryEventLedger(retention time.Duration) *InMemoryEventLedger {
	if retention <= 0 {
		retention = defaultClaimRetention
	}
	return &InMemoryEventLedger{
		Retention: retention,
		entries:   map[string]claimEntry{},
		claims:    map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryEventLedger) Claim(
	_ context.Context,
	key string,
	lease time.Duration,
) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: event ledger is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: event key is required", nil)
	}
	now := s.now()
	if lease <= 0 {
		lease = defaultClaimLease
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	s.evictExpiredLocked(now)
	entry, exists := s.entries[key]
	if !exists {
		claimID := s.nextClaimID()
		s.entries[key] = claimEntry{
			Key:            key,
			Status:         core.ClaimStatusProcessing,
			ClaimID:        claimID,
			Attempts:       1,
			LeaseExpiresAt: now.Add(lease),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch entry.Status {
	case core.ClaimStatusCompleted:
		return "", false, nil
	case core.ClaimStatusProcessing:
		if now.Before(entry.LeaseExpiresAt) {
			return "", false, core.ErrClaimInFlight
		}
	}

	if entry.ClaimID != "" {
		delete(s.claims, entry.ClaimID)
	}
	claimID := s.nextClaimID()
	entry.Status = core.ClaimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.LeaseExpiresAt = now.Add(lease)
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryEventLedger) Complete(_ context.Context, claimID string) error {
	if s == nil {
		return inboundInternal("inbound: event ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != core.ClaimStatusProcessing {
		return nil
	}
	entry.Status = core.ClaimStatusCompleted
	entry.LeaseExpiresAt = time.Time{}
	entry.RetainUntil = s.now().Add(s.retention())
	entry.LastError = ""
	s.entries[key] = entry
	return nil
}

func (s *InMemoryEventLedger) Fail(_ context.Context, claimID string, cause error) error {
	if s == nil {
		return inboundInternal("inbound: event ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != core.ClaimStatusProcessing {
		return nil
	}
	entry.Status = core.ClaimStatusRetryReady
	entry.LeaseExpiresAt = time.Time{}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	s.entries[key] = entry
	return nil
}

// Status reports the recorded state of key, if any.
func (s *InMemoryEventLedger) Status(key string) (core.ClaimStatus, int, bool) {
	if s == nil {
		return "", 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	if !ok {
		return "", 0, false
	}
	return entry.Status, entry.Attempts, true
}

func (s *InMemoryEventLedger) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryEventLedger) retention() time.Duration {
	if s.Retention > 0 {
		return s.Retention
	}
	return defaultClaimRetention
}

func (s *InMemoryEventLedger) ensureLocked() {
	if s.entries == nil {
		s.entries = map[string]claimEntry{}
	}
	if s.claims == nil {
		s.claims = map[string]string{}
	}
}

func (s *InMemoryEventLedger) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryEventLedger) evictExpiredLocked(now time.Time) {
	for key, entry := range s.entries {
		if entry.Status != core.ClaimStatusCompleted {
			continue
		}
		if !now.Before(entry.RetainUntil) {
			delete(s.entries, key)
		}
	}
}
