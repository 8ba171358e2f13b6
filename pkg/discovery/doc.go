// Package discovery finds realtime hubs on the local network with
// mDNS/DNS-SD.
//
// Hubs advertise the _rtsync._tcp service. The instance name is the
// user-facing hub name; the TXT record carries:
//
//	id    hub id (stable across restarts)
//	v     wire protocol version
//	path  websocket path, e.g. /v1/socket
//
// Browsers aggregate the announcements of one instance across interfaces,
// so a hub reachable over IPv4 and IPv6 appears once with every address.
package discovery
