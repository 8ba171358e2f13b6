// Package connection supervises the websocket client's connection to a hub.
//
// A Supervisor dials once in Start. When the owner reports a loss with Lost,
// it redials in the background until a dial succeeds, waiting between
// attempts as its Policy prescribes:
//
//	attempt n: min(Initial * Multiplier^(n-1), Max) + random(0, that * Jitter)
//
// With the default policy that is 1s, 2s, 4s, 8s, 16s, then 30s until the
// hub is back. The attempt counter resets on every successful dial. Channel
// rejoins are the owner's job; they happen inside its ConnectFunc.
package connection
