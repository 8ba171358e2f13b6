// Package ws carries transport channels over a websocket connection.
//
// Server is an http.Handler placed in front of a hub Transport (usually
// memory.Hub). Each JOIN frame opens and subscribes a hub channel on behalf
// of the client; hub events are forwarded as EVENT frames on the ref the
// client chose. Client implements transport.Transport, so the engine runs
// unchanged over the network.
//
// # Connection Loss
//
// The client pings every keep-alive interval. A read error or too many
// missed pongs drops the connection: every joined channel reports
// CHANNEL_ERROR with transport.ErrConnectionLost, and connection.Supervisor
// redials with exponential backoff. After a successful redial the channels
// rejoin and report SUBSCRIBED again. Channels the server rejected are not
// rejoined.
//
// Frames are encoded with package wire, one per binary message.
package ws
