// Package subscription implements the per-session registry of topic
// subscriptions.
//
// A Registry owns at most one transport channel per topic. Incoming events on
// that channel are translated and routed to the listeners registered with the
// subscribe call that opened it.
//
// # Re-subscribing
//
// Subscribing to a topic that already has a channel closes the old channel and
// replaces it. The earlier listeners stop receiving events and their
// Unsubscribe becomes a no-op. Listeners are not merged.
//
// # Concurrency
//
// Each topic has its own slot mutex; the topic map lock is only held for map
// access. Calls for different topics never block each other, calls for the
// same topic are serialized. Cleanup closes every channel and rejects later
// subscribes.
//
// # Errors
//
// Transport failures are never returned from Subscribe. They reach
// Listeners.OnError wrapped in a *transport.Error.
package subscription
