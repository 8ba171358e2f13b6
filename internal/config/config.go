// Package config loads the YAML configuration of the rt-hub and rt-client
// binaries. Files are decoded over the defaults, so a file only needs the
// settings it changes; unknown keys are rejected. Command-line flags are
// applied by the binaries after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Hub configures rt-hub.
type Hub struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// SocketPath serves websocket connections.
	SocketPath string `yaml:"socket_path"`

	// IngestPath accepts POSTed changes and serves journal catch-up queries.
	IngestPath string `yaml:"ingest_path"`

	LogLevel    string `yaml:"log_level"`
	ProtocolLog string `yaml:"protocol_log"`

	// ProtocolLogMaxSize rotates the protocol log past this many bytes.
	// Zero disables rotation.
	ProtocolLogMaxSize int64 `yaml:"protocol_log_max_size"`

	Journal Journal   `yaml:"journal"`
	MDNS    MDNS      `yaml:"mdns"`
	TLS     ServerTLS `yaml:"tls"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Journal configures the change journal. An empty Path disables it.
type Journal struct {
	Path string `yaml:"path"`

	// Retention prunes entries older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`

	// PruneInterval is how often retention is applied.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// MDNS configures hub advertisement.
type MDNS struct {
	Enabled   bool          `yaml:"enabled"`
	Instance  string        `yaml:"instance"`
	HubID     string        `yaml:"hub_id"`
	Interface string        `yaml:"interface"`
	TTL       time.Duration `yaml:"ttl"`
}

// ServerTLS enables wss:// when CertFile is set.
type ServerTLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ClientCAFile, when set, requires client certificates signed by it.
	ClientCAFile string `yaml:"client_ca_file"`
}

// Enabled reports whether the hub serves TLS.
func (t ServerTLS) Enabled() bool {
	return t.CertFile != ""
}

// ClientTLS configures wss:// connections.
type ClientTLS struct {
	CAFile             string `yaml:"ca_file"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Client configures rt-client.
type Client struct {
	// HubURL is the websocket URL. Empty means discover a hub via mDNS.
	HubURL string `yaml:"hub_url"`

	// HubID restricts discovery to one hub.
	HubID string `yaml:"hub_id"`

	ParticipantID string `yaml:"participant_id"`
	LogLevel      string `yaml:"log_level"`
	ProtocolLog   string `yaml:"protocol_log"`

	TLS ClientTLS `yaml:"tls"`

	HealthTimeout  time.Duration `yaml:"health_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultHub returns the hub defaults.
func DefaultHub() Hub {
	return Hub{
		Listen:     ":4000",
		SocketPath: "/v1/socket",
		IngestPath: "/v1/changes",
		LogLevel:   "info",
		Journal: Journal{
			Path:          "rt-hub.db",
			PruneInterval: time.Hour,
		},
		MDNS: MDNS{
			Instance: "rt-hub",
			TTL:      120 * time.Second,
		},
		ReadTimeout:     50 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		LogLevel:       "info",
		HealthTimeout:  10 * time.Second,
		PingInterval:   15 * time.Second,
		ConnectTimeout: 30 * time.Second,
	}
}

// LoadHub reads path over the defaults and validates the result. An empty
// path returns the defaults.
func LoadHub(path string) (Hub, error) {
	cfg := DefaultHub()
	if err := load(path, &cfg); err != nil {
		return Hub{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Hub{}, err
	}
	return cfg, nil
}

// LoadClient reads path over the defaults and validates the result. An
// empty path returns the defaults.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if err := load(path, &cfg); err != nil {
		return Client{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func load(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := decode(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid setting.
func (h Hub) Validate() error {
	var errs []error
	if h.Listen == "" {
		errs = append(errs, invalid("listen", "must not be empty"))
	}
	if !strings.HasPrefix(h.SocketPath, "/") {
		errs = append(errs, invalid("socket_path", "must start with /"))
	}
	if !strings.HasPrefix(h.IngestPath, "/") {
		errs = append(errs, invalid("ingest_path", "must start with /"))
	}
	if h.SocketPath == h.IngestPath {
		errs = append(errs, invalid("ingest_path", "must differ from socket_path"))
	}
	if _, err := ParseLevel(h.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if h.ProtocolLogMaxSize < 0 {
		errs = append(errs, invalid("protocol_log_max_size", "must not be negative"))
	}
	if h.Journal.Retention < 0 {
		errs = append(errs, invalid("journal.retention", "must not be negative"))
	}
	if h.Journal.Retention > 0 && h.Journal.PruneInterval <= 0 {
		errs = append(errs, invalid("journal.prune_interval", "must be positive when retention is set"))
	}
	if h.MDNS.Enabled && h.MDNS.Instance == "" {
		errs = append(errs, invalid("mdns.instance", "must not be empty when mdns is enabled"))
	}
	if (h.TLS.CertFile == "") != (h.TLS.KeyFile == "") {
		errs = append(errs, invalid("tls", "cert_file and key_file must be set together"))
	}
	if h.TLS.ClientCAFile != "" && !h.TLS.Enabled() {
		errs = append(errs, invalid("tls.client_ca_file", "requires cert_file"))
	}
	if h.ReadTimeout <= 0 {
		errs = append(errs, invalid("read_timeout", "must be positive"))
	}
	if h.WriteTimeout <= 0 {
		errs = append(errs, invalid("write_timeout", "must be positive"))
	}
	if h.ShutdownTimeout <= 0 {
		errs = append(errs, invalid("shutdown_timeout", "must be positive"))
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c Client) Validate() error {
	var errs []error
	if c.HubURL != "" && !strings.HasPrefix(c.HubURL, "ws://") && !strings.HasPrefix(c.HubURL, "wss://") {
		errs = append(errs, invalid("hub_url", "must be a ws:// or wss:// URL"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, invalid("tls", "cert_file and key_file must be set together"))
	}
	if c.HealthTimeout <= 0 {
		errs = append(errs, invalid("health_timeout", "must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, invalid("ping_interval", "must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, invalid("connect_timeout", "must be positive"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, invalid("log_level", fmt.Sprintf("unknown level %q", s))
	}
}

func invalid(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalid, field, msg)
}
