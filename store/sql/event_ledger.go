package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-marketplace/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultClaimLease     = 2 * time.Minute
	defaultClaimRetention = 24 * time.Hour
	maxClaimErrorBytes    = 1024
)

// EventLedger is the durable core.EventLedger. Claim state moves with
// conditional updates so concurrent workers race on a single row.
type EventLedger struct {
	db        *bun.DB
	repo      repository.Repository[*eventClaimRecord]
	retention time.Duration
	now       func() time.Time
}

func NewEventLedger(db *bun.DB, retention time.Duration) (*EventLedger, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventClaimRecord](db, eventClaimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event claim repository wiring: %w", err)
		}
	}
	if retention <= 0 {
		retention = defaultClaimRetention
	}
	return &EventLedger{
		db:        db,
		repo:      repo,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *EventLedger) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: event ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, core.BadInputError("claim_key", "event key is required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.now()
	leaseExpiresAt := now.Add(lease)
	claimID := uuid.NewString()

	_, err := s.db.NewInsert().Model(&eventClaimRecord{
		ID:             uuid.NewString(),
		ClaimKey:       key,
		ClaimID:        claimID,
		Status:         string(core.ClaimStatusProcessing),
		Attempts:       1,
		LeaseExpiresAt: &leaseExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Exec(ctx)
	if err == nil {
		return claimID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, err
	}

	result, err := s.db.NewUpdate().
		Model((*eventClaimRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", string(core.ClaimStatusProcessing)).
		Set("attempts = attempts + 1").
		Set("lease_expires_at = ?", leaseExpiresAt).
		Set("retain_until = NULL").
		Set("updated_at = ?", now).
		Where("claim_key = ?", key).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status = ?", string(core.ClaimStatusRetryReady)).
				WhereOr("status = ? AND lease_expires_at <= ?", string(core.ClaimStatusProcessing), now).
				WhereOr("status = ? AND retain_until <= ?", string(core.ClaimStatusCompleted), now)
		}).
		Exec(ctx)
	if err != nil {
		return "", false, err
	}
	if affected(result) > 0 {
		return claimID, true, nil
	}

	existing, err := s.get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if existing.Status == string(core.ClaimStatusCompleted) {
		return "", false, nil
	}
	return "", false, core.ErrClaimInFlight
}

func (s *EventLedger) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.BadInputError("claim_id", "claim id is required")
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*eventClaimRecord)(nil)).
		Set("status = ?", string(core.ClaimStatusCompleted)).
		Set("lease_expires_at = NULL").
		Set("retain_until = ?", now.Add(s.retention)).
		Set("last_error = ''").
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", string(core.ClaimStatusProcessing)).
		Exec(ctx)
	return err
}

func (s *EventLedger) Fail(ctx context.Context, claimID string, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.BadInputError("claim_id", "claim id is required")
	}
	message := ""
	if cause != nil {
		message = truncateMessage(cause.Error(), maxClaimErrorBytes)
	}
	_, err := s.db.NewUpdate().
		Model((*eventClaimRecord)(nil)).
		Set("status = ?", string(core.ClaimStatusRetryReady)).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", message).
		Set("updated_at = ?", s.now()).
		Where("claim_id = ?", claimID).
		Where("status = ?", string(core.ClaimStatusProcessing)).
		Exec(ctx)
	return err
}

// Status reports the stored claim state of key.
func (s *EventLedger) Status(ctx context.Context, key string) (core.ClaimStatus, int, error) {
	record, err := s.get(ctx, strings.TrimSpace(key))
	if err != nil {
		return "", 0, err
	}
	return core.ClaimStatus(record.Status), record.Attempts, nil
}

// PurgeExpired deletes completed claims past their retention.
func (s *EventLedger) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: event ledger is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*eventClaimRecord)(nil)).
		Where("status = ?", string(core.ClaimStatusCompleted)).
		Where("retain_until <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(result), nil
}

func (s *EventLedger) get(ctx context.Context, key string) (*eventClaimRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: event ledger is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("claim_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sqlstore: event claim not found for key %q", key)
	}
	return records[0], nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// truncateMessage cuts message to at most limit bytes without splitting a
// UTF-8 sequence.
func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
