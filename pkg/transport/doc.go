// Package transport defines the pub/sub channel abstraction the realtime
// engine is built on.
//
// A Transport opens Channels, one per Topic. A Channel has the lifecycle
//
//	CONNECTING -> SUBSCRIBED -> CLOSED
//	           \-> CHANNEL_ERROR
//
// and delivers a stream of tagged Events (record changes, broadcasts and
// presence roster snapshots) in the order the source produced them. Ordering
// holds per channel only; different topics interleave arbitrarily.
//
// Subscribe is asynchronous: the status callback receives every transition.
// The first SUBSCRIBED, CHANNEL_ERROR or CLOSED status is the terminal signal
// callers wait for (see SubscribeAndWait). Transports that can lose their
// connection report CHANNEL_ERROR and may later report SUBSCRIBED again after
// rejoining.
//
// Implementations:
//   - memory: in-process hub, used by tests and by the hub server
//   - ws: websocket client and server multiplexing many channels per connection
//
// # Keep-Alive
//
// Networked transports monitor liveness with ping/pong (KeepAlive):
//   - Ping interval: 15 seconds
//   - Pong timeout: 5 seconds
//   - Max missed pongs: 3
//   - Maximum detection delay: 50 seconds
package transport
