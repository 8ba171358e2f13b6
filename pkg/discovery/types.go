package discovery

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of a hub.
	ServiceType = "_rtsync._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default hub port.
	DefaultPort = 4000

	// DefaultPath is the default websocket path.
	DefaultPath = "/v1/socket"

	// ProtocolVersion is the wire protocol version advertised by hubs.
	ProtocolVersion = 1

	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyHubID   = "id"
	TXTKeyVersion = "v"
	TXTKeyPath    = "path"
	TXTKeyTLS     = "tls"
)

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrNotAdvertising      = errors.New("not advertising")
	ErrNotFound            = errors.New("hub not found")
)

// HubInfo is what a hub advertises.
type HubInfo struct {
	// Name is the instance name shown to users.
	Name string

	// HubID identifies the hub across restarts and address changes.
	HubID string

	// Port is the listen port (default: DefaultPort).
	Port uint16

	// Path is the websocket path (default: DefaultPath).
	Path string

	// Version is the wire protocol version (default: ProtocolVersion).
	Version int

	// TLS is set when the hub serves wss://.
	TLS bool
}

// HubService is a hub found by browsing.
type HubService struct {
	HubInfo

	// Host is the advertised host name.
	Host string

	// Addresses lists the resolved IPv4 and IPv6 addresses.
	Addresses []string
}

// URL returns the websocket URL of the hub on its first address. An empty
// string is returned when no address was resolved.
func (s *HubService) URL() string {
	if len(s.Addresses) == 0 {
		return ""
	}
	path := s.Path
	if path == "" {
		path = DefaultPath
	}
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(s.Addresses[0], strconv.Itoa(int(s.Port))),
		Path:   path,
	}
	return u.String()
}

// String returns a one-line description.
func (s *HubService) String() string {
	return fmt.Sprintf("%s (%s) %s", s.Name, s.HubID, s.URL())
}
