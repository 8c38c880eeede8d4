package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/core"
)

var (
	_ gocmd.Querier[TokenStatusMessage, core.TokenStatusReport]    = (*TokenStatusQuery)(nil)
	_ gocmd.Querier[AvailabilityMessage, core.Availability]        = (*AvailabilityQuery)(nil)
	_ gocmd.Querier[ListInterruptionsMessage, []core.Interruption] = (*ListInterruptionsQuery)(nil)
	_ gocmd.Querier[ResolveMerchantMessage, core.MerchantProfile]  = (*ResolveMerchantQuery)(nil)
)
