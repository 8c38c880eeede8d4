// Package ifood implements the marketplace client for the iFood merchant
// API: the device-code authorization endpoints, merchant status and
// interruptions, order lifecycle actions, and event polling.
package ifood
