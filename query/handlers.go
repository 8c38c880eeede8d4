package query

import (
	"context"

	"github.com/goliatone/go-marketplace/core"
)

type TokenStatusReader interface {
	Status(ctx context.Context, merchantID string) (core.TokenStatusReport, error)
}

type MerchantReader interface {
	Availability(ctx context.Context, merchantID string) (core.Availability, error)
	ListInterruptions(ctx context.Context, merchantID string) ([]core.Interruption, error)
	ResolveMerchant(ctx context.Context, merchantID string) (core.MerchantProfile, error)
}

// TokenStatusQuery answers from stored state only; it never calls the
// provider.
type TokenStatusQuery struct {
	reader TokenStatusReader
}

func NewTokenStatusQuery(reader TokenStatusReader) *TokenStatusQuery {
	return &TokenStatusQuery{reader: reader}
}

func (q *TokenStatusQuery) Query(ctx context.Context, msg TokenStatusMessage) (core.TokenStatusReport, error) {
	if q == nil || q.reader == nil {
		return core.TokenStatusReport{}, queryDependencyError("query: token status reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.TokenStatusReport{}, err
	}
	return q.reader.Status(ctx, msg.MerchantID)
}

type AvailabilityQuery struct {
	reader MerchantReader
}

func NewAvailabilityQuery(reader MerchantReader) *AvailabilityQuery {
	return &AvailabilityQuery{reader: reader}
}

func (q *AvailabilityQuery) Query(ctx context.Context, msg AvailabilityMessage) (core.Availability, error) {
	if q == nil || q.reader == nil {
		return core.Availability{}, queryDependencyError("query: merchant reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Availability{}, err
	}
	return q.reader.Availability(ctx, msg.MerchantID)
}

type ListInterruptionsQuery struct {
	reader MerchantReader
}

func NewListInterruptionsQuery(reader MerchantReader) *ListInterruptionsQuery {
	return &ListInterruptionsQuery{reader: reader}
}

func (q *ListInterruptionsQuery) Query(ctx context.Context, msg ListInterruptionsMessage) ([]core.Interruption, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: merchant reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListInterruptions(ctx, msg.MerchantID)
}

type ResolveMerchantQuery struct {
	reader MerchantReader
}

func NewResolveMerchantQuery(reader MerchantReader) *ResolveMerchantQuery {
	return &ResolveMerchantQuery{reader: reader}
}

func (q *ResolveMerchantQuery) Query(ctx context.Context, msg ResolveMerchantMessage) (core.MerchantProfile, error) {
	if q == nil || q.reader == nil {
		return core.MerchantProfile{}, queryDependencyError("query: merchant reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.MerchantProfile{}, err
	}
	return q.reader.ResolveMerchant(ctx, msg.MerchantID)
}

// Handlers groups every marketplace query.
type Handlers struct {
	TokenStatus       *TokenStatusQuery
	Availability      *AvailabilityQuery
	ListInterruptions *ListInterruptionsQuery
	ResolveMerchant   *ResolveMerchantQuery
}

func NewHandlers(tokens TokenStatusReader, merchants MerchantReader) Handlers {
	return Handlers{
		TokenStatus:       NewTokenStatusQuery(tokens),
		Availability:      NewAvailabilityQuery(merchants),
		ListInterruptions: NewListInterruptionsQuery(merchants),
		ResolveMerchant:   NewResolveMerchantQuery(merchants),
	}
}
