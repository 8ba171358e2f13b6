// Command rt-client is an interactive console for a realtime hub.
//
// It connects to a hub over websocket, either at -url or by discovering one
// via mDNS, and drives subscriptions, presence, health checks and conflict
// resolution from typed commands.
//
// Usage:
//
//	rt-client [flags]
//
// Flags:
//
//	-config string         YAML configuration file
//	-url string            Hub websocket URL (default: discover via mDNS)
//	-hub-id string         Only discover the hub with this ID
//	-participant string    Participant ID used for presence (default: hostname)
//	-log-level string      Log level: debug, info, warn, error
//	-protocol-log string   File path for protocol event logging (CBOR format)
//
// Example:
//
//	rt-client -url ws://localhost:4000/v1/socket -participant alice
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/orgdesk/realtime-go/internal/config"
	"github.com/orgdesk/realtime-go/pkg/discovery"
	rtlog "github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/realtime"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/ws"
)

var (
	configPath  string
	hubURL      string
	hubID       string
	participant string
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&hubURL, "url", "", "Hub websocket URL (default: discover via mDNS)")
	flag.StringVar(&hubID, "hub-id", "", "Only discover the hub with this ID")
	flag.StringVar(&participant, "participant", "", "Participant ID used for presence (default: hostname)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	applyDefaults(&cfg)

	log.SetFlags(log.Ltime | log.Lmicroseconds)
	lvl, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	var protoLogger rtlog.Logger
	if cfg.ProtocolLog != "" {
		fileLogger, err := rtlog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to create protocol log: %v", err)
		}
		defer fileLogger.Close()
		protoLogger = fileLogger
	}
	if cfg.LogLevel == "debug" {
		protoLogger = rtlog.NewMultiLogger(protoLogger, rtlog.NewSlogAdapter(logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.HubURL == "" {
		log.Println("Discovering hub via mDNS...")
		hub, err := discover(ctx, cfg.HubID)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		log.Printf("Found %s", hub)
		cfg.HubURL = hub.URL()
	}

	dialer, err := newDialer(cfg.TLS)
	if err != nil {
		log.Fatalf("TLS configuration error: %v", err)
	}

	log.Printf("Connecting to %s as %s", cfg.HubURL, cfg.ParticipantID)
	client, err := ws.Dial(ctx, ws.ClientConfig{
		URL:    cfg.HubURL,
		Dialer: dialer,
		KeepAlive: transport.KeepAliveConfig{
			PingInterval: cfg.PingInterval,
		},
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         protoLogger,
	})
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	engine := realtime.New(client,
		realtime.WithLogger(protoLogger),
		realtime.WithHealthTimeout(cfg.HealthTimeout),
	)
	defer engine.Cleanup()

	console := NewConsole(engine, cfg.ParticipantID, os.Stdout)
	console.latency = client.Latency
	if err := console.Run(ctx); err != nil {
		log.Printf("Console error: %v", err)
	}
	console.Close()
}

func discover(ctx context.Context, hubID string) (*discovery.HubService, error) {
	return discovery.NewBrowser(discovery.DefaultBrowserConfig()).FindFirst(ctx, hubID)
}

// newDialer returns a websocket dialer verifying wss:// hubs per cfg.
func newDialer(cfg config.ClientTLS) (*websocket.Dialer, error) {
	certs, err := transport.LoadTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.CAFile)
	if err != nil {
		return nil, err
	}
	certs.ClientCAs = nil
	certs.ServerName = cfg.ServerName
	certs.InsecureSkipVerify = cfg.InsecureSkipVerify

	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = transport.NewClientTLSConfig(certs)
	return &dialer, nil
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cfg *config.Client) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.HubURL = hubURL
		case "hub-id":
			cfg.HubID = hubID
		case "participant":
			cfg.ParticipantID = participant
		case "log-level":
			cfg.LogLevel = logLevel
		case "protocol-log":
			cfg.ProtocolLog = protocolLog
		}
	})
}

func applyDefaults(cfg *config.Client) {
	if cfg.ParticipantID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "client"
		}
		cfg.ParticipantID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
}
