// Package memory implements an in-process transport hub.
//
// The hub fans published events out to every subscribed channel of a topic.
// Each channel owns a transport.Mailbox (an unbounded FIFO drained by one
// goroutine), so publishers never block on slow handlers and per-channel
// order matches publish order. Status transitions travel through the same queue, which
// guarantees a channel observes SUBSCRIBED before the first event.
//
// The hub also keeps a presence roster per topic. Every track/untrack, and
// every close of a channel that tracked keys, pushes the full roster to all
// subscribed channels of the topic.
//
// Failure injection (FailSubscribe, SetSubscribeDelay) lets tests exercise
// error and latency paths of the engine.
package memory
