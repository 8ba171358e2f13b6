// Command rt-hub serves realtime channels over websocket.
//
// Producers POST record changes to the ingest endpoint. The hub journals
// each change and publishes it to every channel subscribed to its topic.
// Clients that missed changes page through the journal with GET on the same
// endpoint.
//
// Usage:
//
//	rt-hub [flags]
//
// Flags:
//
//	-config string         YAML configuration file
//	-listen string         HTTP listen address (default ":4000")
//	-journal string        Journal database path, empty disables journaling
//	-retention duration    Prune journal entries older than this
//	-mdns                  Advertise the hub via mDNS
//	-hub-id string         Hub ID advertised via mDNS (default: random)
//	-log-level string      Log level: debug, info, warn, error
//	-protocol-log string   File path for protocol event logging (CBOR format)
//
// Example:
//
//	rt-hub -listen :4000 -journal /var/lib/rt-hub/journal.db -mdns
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/orgdesk/realtime-go/internal/config"
	"github.com/orgdesk/realtime-go/pkg/discovery"
	"github.com/orgdesk/realtime-go/pkg/journal"
	rtlog "github.com/orgdesk/realtime-go/pkg/log"
	"github.com/orgdesk/realtime-go/pkg/transport"
	"github.com/orgdesk/realtime-go/pkg/transport/memory"
	"github.com/orgdesk/realtime-go/pkg/transport/ws"
)

var (
	configPath  string
	listen      string
	journalPath string
	retention   time.Duration
	mdns        bool
	hubID       string
	logLevel    string
	protocolLog string
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (default \":4000\")")
	flag.StringVar(&journalPath, "journal", "", "Journal database path, empty disables journaling")
	flag.DurationVar(&retention, "retention", 0, "Prune journal entries older than this")
	flag.BoolVar(&mdns, "mdns", false, "Advertise the hub via mDNS")
	flag.StringVar(&hubID, "hub-id", "", "Hub ID advertised via mDNS (default: random)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&protocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadHub(configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if cfg.MDNS.HubID == "" {
		cfg.MDNS.HubID = uuid.NewString()
	}

	logger := setupLogging(cfg.LogLevel)

	log.Println("Realtime Hub")
	log.Println("============")
	log.Printf("Listen:  %s", cfg.Listen)
	log.Printf("Socket:  %s", cfg.SocketPath)
	log.Printf("Ingest:  %s", cfg.IngestPath)
	if cfg.TLS.Enabled() {
		log.Printf("TLS:     %s (client certificates required: %t)", cfg.TLS.CertFile, cfg.TLS.ClientCAFile != "")
	}
	if cfg.Journal.Path != "" {
		log.Printf("Journal: %s (retention: %s)", cfg.Journal.Path, retentionString(cfg.Journal.Retention))
	}

	var protoLogger rtlog.Logger
	if cfg.ProtocolLog != "" {
		fileLogger, err := rtlog.NewFileLogger(cfg.ProtocolLog, rtlog.WithMaxSize(cfg.ProtocolLogMaxSize))
		if err != nil {
			log.Fatalf("Failed to create protocol log: %v", err)
		}
		defer fileLogger.Close()
		protoLogger = fileLogger
		log.Printf("Protocol logging: %s", cfg.ProtocolLog)
	}
	if cfg.LogLevel == "debug" {
		protoLogger = rtlog.NewMultiLogger(protoLogger, rtlog.NewSlogAdapter(logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, protoLogger); err != nil {
		log.Fatalf("Hub failed: %v", err)
	}
	log.Println("Goodbye!")
}

// run serves until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg config.Hub, logger *slog.Logger, protoLogger rtlog.Logger) error {
	hub := memory.NewHub()
	defer hub.Close()

	ingest := &ingestHandler{hub: hub, logger: logger, now: time.Now}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		var err error
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer jrnl.Close()
		ingest.journal = jrnl
	}

	server := ws.NewServer(hub, ws.ServerConfig{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       protoLogger,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.SocketPath, server)
	mux.Handle(cfg.IngestPath, ingest)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"hub_id":      cfg.MDNS.HubID,
			"channels":    hub.OpenChannels(),
			"connections": server.ConnectionCount(),
		})
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.TLS.Enabled() {
		tlsConfig, err := serverTLS(cfg.TLS)
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsConfig)
	}
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Serving on %s", ln.Addr())
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		server.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	if jrnl != nil && cfg.Journal.Retention > 0 {
		g.Go(func() error {
			pruneLoop(ctx, jrnl, cfg.Journal, logger)
			return nil
		})
	}

	if cfg.MDNS.Enabled {
		advertiser, err := advertise(cfg, ln.Addr())
		if err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer advertiser.Stop()
			log.Printf("Advertising %q (hub ID %s)", cfg.MDNS.Instance, cfg.MDNS.HubID)
		}
	}

	return g.Wait()
}

func pruneLoop(ctx context.Context, j *journal.Journal, cfg config.Journal, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := j.Prune(ctx, now.Add(-cfg.Retention))
			if err != nil {
				logger.Error("journal prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("journal pruned", "removed", n)
			}
		}
	}
}

func advertise(cfg config.Hub, addr net.Addr) (*discovery.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, err
	}

	advertiser := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.MDNS.Interface,
		TTL:       cfg.MDNS.TTL,
	})
	err = advertiser.Advertise(&discovery.HubInfo{
		Name:    cfg.MDNS.Instance,
		HubID:   cfg.MDNS.HubID,
		Port:    uint16(port),
		Path:    cfg.SocketPath,
		Version: discovery.ProtocolVersion,
		TLS:     cfg.TLS.Enabled(),
	})
	if err != nil {
		return nil, err
	}
	return advertiser, nil
}

func serverTLS(cfg config.ServerTLS) (*tls.Config, error) {
	certs, err := transport.LoadTLSConfig(cfg.CertFile, cfg.KeyFile, cfg.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	certs.RootCAs = nil
	return transport.NewServerTLSConfig(certs)
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cfg *config.Hub) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = listen
		case "journal":
			cfg.Journal.Path = journalPath
		case "retention":
			cfg.Journal.Retention = retention
		case "mdns":
			cfg.MDNS.Enabled = mdns
		case "hub-id":
			cfg.MDNS.HubID = hubID
		case "log-level":
			cfg.LogLevel = logLevel
		case "protocol-log":
			cfg.ProtocolLog = protocolLog
		}
	})
}

func setupLogging(level string) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if level == "debug" {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	}

	lvl, _ := config.ParseLevel(level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func retentionString(d time.Duration) string {
	if d <= 0 {
		return "forever"
	}
	return d.String()
}
