package ifood

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-marketplace/core"
)

type ackPayload struct {
	ID string `json:"id"`
}

// PollEvents issues one GET to the polling endpoint. 204 means no pending
// events and yields an empty slice.
func (c *Client) PollEvents(ctx context.Context, merchantID string) ([]core.Event, error) {
	res, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "poll_events",
		method:     http.MethodGet,
		url:        c.url(pathEventsPolling),
		expected:   http.StatusOK,
		accepted:   []int{http.StatusNoContent},
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNoContent || strings.TrimSpace(string(res.Body)) == "" {
		return []core.Event{}, nil
	}
	var events []core.Event
	if err := decodeJSON("poll_events", res, &events); err != nil {
		return nil, err
	}
	for i := range events {
		events[i].ID = strings.TrimSpace(events[i].ID)
		events[i].OrderID = strings.TrimSpace(events[i].OrderID)
		events[i].FullCode = core.EventCode(strings.ToUpper(strings.TrimSpace(string(events[i].FullCode))))
	}
	return events, nil
}

// AcknowledgeEvents confirms ids in a single request. It makes no call for
// an empty list.
func (c *Client) AcknowledgeEvents(ctx context.Context, merchantID string, eventIDs []string) error {
	payload := make([]ackPayload, 0, len(eventIDs))
	for _, id := range eventIDs {
		if id = strings.TrimSpace(id); id != "" {
			payload = append(payload, ackPayload{ID: id})
		}
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := c.do(ctx, apiCall{
		merchantID: merchantID,
		endpoint:   "ack_events",
		method:     http.MethodPost,
		url:        c.url(pathEventsAck),
		body:       payload,
		expected:   http.StatusAccepted,
	})
	return err
}
