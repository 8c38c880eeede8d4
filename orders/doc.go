// Package orders runs merchant-initiated order actions: the provider call
// first, then the matching OrderLifecycleBridge side effect once the provider
// accepted it.
package orders
