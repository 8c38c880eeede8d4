package ifood

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

// interruptionTimeLayout is the offset-less wall-clock format the
// interruptions endpoint expects, read in interruptions.time_zone.
const interruptionTimeLayout = "2006-01-02T15:04:05"

type merchantPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CorporateName string `json:"corporateName"`
}

type statusPayload struct {
	Operation    string              `json:"operation"`
	SalesChannel string              `json:"salesChannel"`
	Available    *bool               `json:"available"`
	State        string              `json:"state"`
	Validations  []validationPayload `json:"validations"`
}

type validationPayload struct {
	ID      string         `json:"id"`
	Code    string         `json:"code"`
	State   string         `json:"state"`
	Message map[string]any `json:"message"`
}

type interruptionPayload struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func (c *Client) ListMerchants(ctx context.Context, merchantID string) ([]core.MerchantProfile, error) {
	res, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "merchants",
		method:     http.MethodGet,
		url:        c.url(pathMerchants),
		expected:   http.StatusOK,
	})
	if err != nil {
		return nil, err
	}
	var payload []merchantPayload
	if err := decodeJSON("merchants", res, &payload); err != nil {
		return nil, err
	}
	out := make([]core.MerchantProfile, 0, len(payload))
	for _, merchant := range payload {
		out = append(out, core.MerchantProfile{
			ExternalMerchantID: strings.TrimSpace(merchant.ID),
			Name:               strings.TrimSpace(merchant.Name),
		})
	}
	return out, nil
}

// ResolveMerchant returns the provider merchant bound to the credential,
// looking it up once and caching it on the credential record.
func (c *Client) ResolveMerchant(ctx context.Context, merchantID string) (core.MerchantProfile, error) {
	credential, err := c.store.Get(ctx, merchantID)
	if err != nil {
		return core.MerchantProfile{}, err
	}
	if strings.TrimSpace(credential.ExternalMerchantID) != "" {
		return core.MerchantProfile{
			ExternalMerchantID: credential.ExternalMerchantID,
			Name:               credential.MerchantName,
		}, nil
	}

	merchants, err := c.ListMerchants(ctx, merchantID)
	if err != nil {
		return core.MerchantProfile{}, err
	}
	if len(merchants) == 0 || merchants[0].ExternalMerchantID == "" {
		return core.MerchantProfile{}, core.ClientRequestError("merchants", http.StatusNotFound, "no merchant bound to credential")
	}
	profile := merchants[0]
	if _, err := c.store.SaveMerchantProfile(ctx, merchantID, profile); err != nil {
		return core.MerchantProfile{}, err
	}
	return profile, nil
}

// Availability reports the merchant as available unless a validation is in
// a state other than OK or WARNING.
func (c *Client) Availability(ctx context.Context, merchantID string) (core.Availability, error) {
	profile, err := c.ResolveMerchant(ctx, merchantID)
	if err != nil {
		return core.Availability{}, err
	}
	res, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "merchant_status",
		method:     http.MethodGet,
		url:        c.url(pathMerchants, profile.ExternalMerchantID, "status"),
		expected:   http.StatusOK,
	})
	if err != nil {
		return core.Availability{}, err
	}
	var payload []statusPayload
	if err := decodeJSON("merchant_status", res, &payload); err != nil {
		return core.Availability{}, err
	}

	availability := core.Availability{Available: true, Validations: []core.AvailabilityValidation{}}
	for _, operation := range payload {
		if availability.State == "" {
			availability.State = strings.TrimSpace(operation.State)
		}
		for _, validation := range operation.Validations {
			state := strings.ToUpper(strings.TrimSpace(validation.State))
			availability.Validations = append(availability.Validations, core.AvailabilityValidation{
				ID:      validation.ID,
				Code:    validation.Code,
				State:   state,
				Message: validationMessage(validation.Message),
			})
			if state != "OK" && state != "WARNING" {
				availability.Available = false
			}
		}
	}
	return availability, nil
}

func (c *Client) ListInterruptions(ctx context.Context, merchantID string) ([]core.Interruption, error) {
	profile, err := c.ResolveMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	res, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "list_interruptions",
		method:     http.MethodGet,
		url:        c.url(pathMerchants, profile.ExternalMerchantID, "interruptions"),
		expected:   http.StatusOK,
	})
	if err != nil {
		return nil, err
	}
	var payload []interruptionPayload
	if err := decodeJSON("list_interruptions", res, &payload); err != nil {
		return nil, err
	}
	out := make([]core.Interruption, 0, len(payload))
	for _, item := range payload {
		out = append(out, core.Interruption{
			ID:          item.ID,
			Description: item.Description,
			Start:       parseInterruptionTime(item.Start, c.location),
			End:         parseInterruptionTime(item.End, c.location),
		})
	}
	return out, nil
}

// Pause opens a manual interruption lasting duration, or the configured
// default when duration is not positive.
func (c *Client) Pause(ctx context.Context, merchantID string, duration time.Duration) (core.Interruption, error) {
	profile, err := c.ResolveMerchant(ctx, merchantID)
	if err != nil {
		return core.Interruption{}, err
	}
	if duration <= 0 {
		duration = c.cfg.Interruptions.DefaultDuration
	}
	now := c.clock().In(c.location)
	interruption := core.Interruption{
		ID:          fmt.Sprintf("%s%d", c.cfg.Interruptions.IDPrefix, now.Unix()),
		Description: c.cfg.Interruptions.Description,
		Start:       now,
		End:         now.Add(duration),
	}
	_, err = c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "create_interruption",
		method:     http.MethodPost,
		url:        c.url(pathMerchants, profile.ExternalMerchantID, "interruptions"),
		body: interruptionPayload{
			ID:          interruption.ID,
			Description: interruption.Description,
			Start:       interruption.Start.Format(interruptionTimeLayout),
			End:         interruption.End.Format(interruptionTimeLayout),
		},
		expected: http.StatusCreated,
	})
	if err != nil {
		return core.Interruption{}, err
	}
	return interruption, nil
}

// Unpause deletes every open interruption, stopping at the first failure.
func (c *Client) Unpause(ctx context.Context, merchantID string) (int, error) {
	profile, err := c.ResolveMerchant(ctx, merchantID)
	if err != nil {
		return 0, err
	}
	interruptions, err := c.ListInterruptions(ctx, merchantID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, interruption := range interruptions {
		_, err := c.do(ctx, apiCall{
			merchantID: merchantID,
			endpoint:   "delete_interruption",
			method:     http.MethodDelete,
			url:        c.url(pathMerchants, profile.ExternalMerchantID, "interruptions", interruption.ID),
			expected:   http.StatusNoContent,
		})
		if err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func parseInterruptionTime(value string, location *time.Location) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, interruptionTimeLayout} {
		if parsed, err := time.ParseInLocation(layout, value, location); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func validationMessage(message map[string]any) string {
	parts := []string{}
	for _, key := range []string{"title", "subtitle", "description"} {
		if value := readAnyString(message[key]); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " - ")
}
