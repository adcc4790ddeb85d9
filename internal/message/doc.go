// Package message defines the bridge's message domain: the immutable
// Message type, the wire payload contract, the two-stage inbound decode,
// and the in-memory history store.
//
// # Wire contract
//
// Messages published by the bridge are JSON objects with the keys
// content, sender, id, and timestamp (RFC 3339). Payloads from other
// producers are arbitrary text and are wrapped as opaque content with a
// synthesized identity.
//
// # Store semantics
//
// The store is append-only and process-lifetime: arrival order is
// preserved, ids are unique, queries are most-recent-first, and removal
// happens only through explicit clear operations.
package message
