// Package delivery broadcasts newly stored messages to live subscribers.
//
// The dispatcher keeps a registry of per-subscriber bounded queues, each
// holding only messages matching that subscriber's filter. Publishing is
// non-blocking: a subscriber whose queue is full loses that message, and
// nobody else is affected. Delivery is best-effort: there is no
// cross-subscriber ordering guarantee and no redelivery.
package delivery
