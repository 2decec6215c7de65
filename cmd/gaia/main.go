// CLAUDE:SUMMARY Entry point for the gaia host — chi router, shield stack, screencast WS, optional MCP over stdio or QUIC.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/gaia/dbopen"
	"github.com/hazyhaar/gaia/host"
	"github.com/hazyhaar/gaia/mcpquic"
	"github.com/hazyhaar/gaia/observability"
	"github.com/hazyhaar/gaia/planstore"
	"github.com/hazyhaar/gaia/shield"
)

func main() {
	var (
		configPath = flag.String("config", env("GAIA_CONFIG", ""), "path to YAML config")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		dataRoot   = flag.String("data-root", "", "artifact directory (overrides config)")
		remoteURL  = flag.String("remote-url", "", "attach to an external Chrome devtools URL")
		headless   = flag.Bool("headless", false, "run Chrome without a window")
		mcpFlag    = flag.String("mcp", "", "MCP transport: stdio or quic (overrides config)")
		logLevel   = flag.String("log-level", "", "debug, info, warn, or error")
	)
	flag.Parse()

	cfg, err := LoadFile(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dataRoot != "" {
		cfg.Host.DataRoot = *dataRoot
	}
	if *remoteURL != "" {
		cfg.Host.RemoteURL = *remoteURL
	}
	if *headless {
		cfg.Host.Headless = true
	}
	if *mcpFlag != "" {
		cfg.MCP.Transport = *mcpFlag
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// Logging. Stderr keeps stdout clean for the MCP stdio transport.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Event log DB.
	eventsDB, err := dbopen.Open(cfg.EventsDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("events db", "error", err)
		os.Exit(1)
	}
	defer eventsDB.Close()
	if err := observability.Init(eventsDB); err != nil {
		slog.Error("events init", "error", err)
		os.Exit(1)
	}
	events := observability.New(eventsDB, observability.WithSlog(logger))
	if cfg.EventRetentionDays > 0 {
		if err := observability.Cleanup(ctx, eventsDB, observability.RetentionConfig{
			EventDays: cfg.EventRetentionDays,
		}); err != nil {
			slog.Warn("events cleanup", "error", err)
		}
	}

	// Plan repository DB.
	plansDB, err := dbopen.Open(cfg.PlansDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("plans db", "error", err)
		os.Exit(1)
	}
	defer plansDB.Close()
	plans, err := planstore.New(plansDB, planstore.WithLogger(logger))
	if err != nil {
		slog.Error("plan store", "error", err)
		os.Exit(1)
	}

	// Host service.
	svc := host.New(cfg.Host,
		host.WithLogger(logger),
		host.WithEventLogger(events),
		host.WithPlanStore(plans),
	)
	defer svc.Close()

	// Optional MCP transport sharing the same action surface.
	switch cfg.MCP.Transport {
	case "stdio":
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "gaia",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()

	case "quic":
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "gaia",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)

		var tlsCfg *tls.Config
		if cfg.MCP.TLSCert != "" && cfg.MCP.TLSKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.MCP.TLSCert, cfg.MCP.TLSKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			slog.Error("MCP QUIC TLS", "error", err)
		} else {
			ql, qErr := mcpquic.NewListener(cfg.MCP.QUICAddr, tlsCfg, mcpSrv, logger)
			if qErr != nil {
				slog.Error("MCP QUIC listener", "error", qErr)
			} else {
				go func() {
					slog.Info("MCP QUIC starting", "addr", cfg.MCP.QUICAddr)
					if sErr := ql.Serve(ctx); sErr != nil && ctx.Err() == nil {
						slog.Error("MCP QUIC", "error", sErr)
					}
				}()
				defer ql.Close()
			}
		}

	case "":
		// HTTP only.

	default:
		slog.Error("unknown MCP transport", "transport", cfg.MCP.Transport)
		os.Exit(1)
	}

	// Router.
	r := chi.NewRouter()
	for _, mw := range shield.DefaultAPIStack(shield.APIConfig{
		KeyHashes:       cfg.APIKeyHashes,
		RateLimit:       cfg.RateLimit,
		ExcludePrefixes: []string{"/healthz", "/ws/"},
	}) {
		r.Use(mw)
	}
	svc.Routes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("gaia host listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
