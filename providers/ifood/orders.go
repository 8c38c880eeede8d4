package ifood

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
)

type cancellationPayload struct {
	Reason           string `json:"reason"`
	CancellationCode string `json:"cancellationCode"`
}

func (c *Client) FetchOrder(ctx context.Context, merchantID string, orderID string) (core.OrderDetail, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.OrderDetail{}, core.BadInputError("order_id", "order id is required")
	}
	res, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "fetch_order",
		method:     http.MethodGet,
		url:        c.url(pathOrders, orderID),
		expected:   http.StatusOK,
	})
	if err != nil {
		return core.OrderDetail{}, err
	}
	raw := map[string]any{}
	if err := decodeJSON("fetch_order", res, &raw); err != nil {
		return core.OrderDetail{}, err
	}
	detail := core.OrderDetail{
		ID:         readAnyString(raw["id"]),
		DisplayID:  readAnyString(raw["displayId"]),
		OrderType:  readAnyString(raw["orderType"]),
		MerchantID: merchantIDFromOrder(raw),
		Raw:        raw,
	}
	if detail.ID == "" {
		detail.ID = orderID
	}
	if createdAt, err := time.Parse(time.RFC3339, readAnyString(raw["createdAt"])); err == nil {
		detail.CreatedAt = &createdAt
	}
	return detail, nil
}

func (c *Client) ConfirmOrder(ctx context.Context, merchantID string, orderID string) error {
	return c.orderAction(ctx, merchantID, orderID, "confirm", nil)
}

// RequestCancellation asks the provider to cancel on the merchant's behalf;
// empty reason or code fall back to the configured defaults.
func (c *Client) RequestCancellation(ctx context.Context, merchantID string, orderID string, reason string, code string) error {
	if strings.TrimSpace(reason) == "" {
		reason = c.cfg.Cancellation.Reason
	}
	if strings.TrimSpace(code) == "" {
		code = c.cfg.Cancellation.Code
	}
	return c.orderAction(ctx, merchantID, orderID, "requestCancellation", cancellationPayload{
		Reason:           strings.TrimSpace(reason),
		CancellationCode: strings.TrimSpace(code),
	})
}

func (c *Client) AcceptCancellation(ctx context.Context, merchantID string, orderID string) error {
	return c.orderAction(ctx, merchantID, orderID, "acceptCancellation", nil)
}

func (c *Client) DenyCancellation(ctx context.Context, merchantID string, orderID string) error {
	return c.orderAction(ctx, merchantID, orderID, "denyCancellation", nil)
}

// ReadyToPickup serves both pickup-ready and takeout notifications.
func (c *Client) ReadyToPickup(ctx context.Context, merchantID string, orderID string) error {
	return c.orderAction(ctx, merchantID, orderID, "readyToPickup", nil)
}

// Dispatch serves both deliverer requests and delivery notifications.
func (c *Client) Dispatch(ctx context.Context, merchantID string, orderID string) error {
	return c.orderAction(ctx, merchantID, orderID, "dispatch", nil)
}

func (c *Client) orderAction(ctx context.Context, merchantID string, orderID string, action string, body any) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.BadInputError("order_id", "order id is required")
	}
	_, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "order_" + action,
		method:     http.MethodPost,
		url:        c.url(pathOrders, orderID, action),
		body:       body,
		expected:   http.StatusAccepted,
	})
	return err
}

func merchantIDFromOrder(raw map[string]any) string {
	merchant, ok := raw["merchant"].(map[string]any)
	if !ok {
		return ""
	}
	return readAnyString(merchant["id"])
}
