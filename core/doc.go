// Package core contains the marketplace integration domain: credentials and
// token lifecycle, event and order contracts, the error taxonomy, and the
// configuration stack. Provider clients, stores, and adapters depend on this
// package; core never imports them.
package core
