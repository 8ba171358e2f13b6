package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ALPNProtocol is offered on wss:// endpoints. The websocket upgrade
// requires HTTP/1.1.
const ALPNProtocol = "http/1.1"

// TLS errors.
var (
	ErrNoCertificate = errors.New("certificate is required")
	ErrNoCAs         = errors.New("no certificates found in CA file")
)

// TLSConfig holds the certificates of a wss:// endpoint.
type TLSConfig struct {
	// Certificate identifies this endpoint. Required for servers, optional
	// for clients (presented when the hub requires client certificates).
	Certificate tls.Certificate

	// RootCAs verifies the hub certificate. Nil uses the system pool.
	RootCAs *x509.CertPool

	// ClientCAs, when set on a server, requires clients to present a
	// certificate signed by one of them.
	ClientCAs *x509.CertPool

	// ServerName overrides the name verified against the hub certificate.
	ServerName string

	// InsecureSkipVerify disables hub certificate verification. Only for
	// testing.
	InsecureSkipVerify bool
}

// NewServerTLSConfig creates the TLS configuration of a hub.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server: %w", ErrNoCertificate)
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cfg.Certificate},
		NextProtos:   []string{ALPNProtocol},
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	if cfg.ClientCAs != nil {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		tlsConfig.ClientCAs = cfg.ClientCAs
	}
	return tlsConfig, nil
}

// NewClientTLSConfig creates the TLS configuration of a client. A nil cfg
// verifies the hub against the system pool.
func NewClientTLSConfig(cfg *TLSConfig) *tls.Config {
	if cfg == nil {
		cfg = &TLSConfig{}
	}
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}
	return tlsConfig
}

// LoadTLSConfig reads PEM files into a TLSConfig. certFile and keyFile must
// both be set or both be empty. caFile, when set, becomes both RootCAs and
// ClientCAs; the caller clears the one it does not need.
func LoadTLSConfig(certFile, keyFile, caFile string) (*TLSConfig, error) {
	cfg := &TLSConfig{}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("loading key pair: %w", err)
		}
		cfg.Certificate = cert
	}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%s: %w", caFile, ErrNoCAs)
		}
		cfg.RootCAs = pool
		cfg.ClientCAs = pool
	}

	return cfg, nil
}

// VerifyConnection checks the negotiated version and protocol.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version < tls.VersionTLS12 {
		return fmt.Errorf("TLS version %x is older than TLS 1.2", state.Version)
	}
	if state.NegotiatedProtocol != "" && state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}
