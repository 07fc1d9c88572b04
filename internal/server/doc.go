// Package server implements the HTTP and WebSocket layer of the room chat relay.
//
// A Hub owns one set of WebSocket connections and their room subscriptions and
// runs every handler callback on a single goroutine. The chat hub drives the
// relay; the roster hub only holds connections open. Configuration, origin
// policy, routing, and server lifecycle live in their own files.
package server
