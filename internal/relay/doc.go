// Package relay owns the broker side of the bridge: the topic registry
// and the connection between broker deliveries and application state.
//
// # Data flow
//
//	broker callback → inbound channel → decode → store.Append → sink
//
// The registry holds the desired subscription set. Subscribe and
// Unsubscribe update the registry first and talk to the broker only when
// connected; a deferred subscribe is picked up by the reconnect hook,
// which re-subscribes every filter from a snapshot. The registry lock is
// never held during a network call.
//
// # Failure policy
//
// Publish failures surface to the caller. Everything inbound degrades
// silently: undecodable payloads fall back to opaque content, duplicate
// echoes of local publishes are suppressed by store-side id
// de-duplication, and a saturated pipeline drops payloads with a
// diagnostic.
package relay
