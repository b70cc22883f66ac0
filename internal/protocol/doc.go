// Package protocol owns the game wire contract.
//
// Ownership boundary:
// - packet catalog (one Go type per tag, carrying only that tag's fields)
// - payload encoding on top of frame/ two-frame packets
// - typed send/receive over one connection
// - protocol-tier error kinds
package protocol
