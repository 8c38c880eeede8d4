package query

import "strings"

const (
	TypeTokenStatus       = "marketplace.query.auth.status"
	TypeAvailability      = "marketplace.query.merchant.availability"
	TypeListInterruptions = "marketplace.query.merchant.interruptions"
	TypeResolveMerchant   = "marketplace.query.merchant.resolve"
)

type TokenStatusMessage struct {
	MerchantID string
}

func (TokenStatusMessage) Type() string { return TypeTokenStatus }

func (m TokenStatusMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

type AvailabilityMessage struct {
	MerchantID string
}

func (AvailabilityMessage) Type() string { return TypeAvailability }

func (m AvailabilityMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

type ListInterruptionsMessage struct {
	MerchantID string
}

func (ListInterruptionsMessage) Type() string { return TypeListInterruptions }

func (m ListInterruptionsMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

type ResolveMerchantMessage struct {
	MerchantID string
}

func (ResolveMerchantMessage) Type() string { return TypeResolveMerchant }

func (m ResolveMerchantMessage) Validate() error {
	return requireMerchant(m.MerchantID)
}

func requireMerchant(merchantID string) error {
	if strings.TrimSpace(merchantID) == "" {
		return queryValidationError("merchant_id", "merchant id is required")
	}
	return nil
}
