// Package service exposes the bridge's query, mutation, and live
// subscription operations as one facade over the store, the relay, and
// the delivery dispatcher. Transport adapters (HTTP, WebSocket) call this
// package and nothing below it.
package service
