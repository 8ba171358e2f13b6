// Package wire defines the CBOR frame format spoken between the websocket
// transport client and server.
//
// Frames use integer keys for compactness and are carried one per binary
// websocket message. A single connection multiplexes many channels; each
// channel is identified by the Ref the client picked when joining, so two
// channels on the same topic never collide.
//
// # Frame Flow
//
//	client                          server
//	  JOIN{ref, topic}        ->
//	                          <-    JOINED{ref} | ERROR{ref, error}
//	  SEND{ref, message}      ->
//	                          <-    EVENT{ref, event}
//	  LEAVE{ref}              ->
//	                          <-    CLOSED{ref}   (server-side close only)
//	  PING{seq}               ->
//	                          <-    PONG{seq}
//
// Record payloads decode as map[string]any. Integers decode as uint64 or
// int64; consumers compare values with record.Equal.
package wire
