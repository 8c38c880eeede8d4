// Package inbound consumes the provider's event feed.
//
// Poller fetches one batch per merchant, hands each event to Dispatcher in
// the order received and acknowledges the batch in a single call only when
// every event was handled. Dispatcher claims events in an optional
// core.EventLedger so a redelivered batch does not repeat side effects.
package inbound
