// Command recvault-server runs the recording vault HTTP server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/recvault/recvault/internal/config"
	"github.com/recvault/recvault/internal/server"
	"github.com/recvault/recvault/internal/vault"
)

func main() {
	configPath := flag.String("config", os.Getenv("RECVAULT_CONFIG"), "Path to config file (TOML)")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	recordingsRoot := flag.String("recordings-root", "", "Recordings root directory (overrides config)")
	dbRoot := flag.String("db-root", "", "Database root directory (overrides config)")
	adminToken := flag.String("admin-token", os.Getenv("RECVAULT_ADMIN_TOKEN"), "Admin API token")
	tlsCert := flag.String("tls-cert", os.Getenv("RECVAULT_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("RECVAULT_TLS_KEY"), "TLS key file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *recordingsRoot != "" {
		cfg.RecordingsRoot = *recordingsRoot
	}
	if *dbRoot != "" {
		cfg.DBRoot = *dbRoot
	}

	logger := newLogger(cfg)

	if err := cfg.EnsureDirs(); err != nil {
		logger.Error("failed to create data directories", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	v, closeStores, err := vault.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open vault", "error", err)
		os.Exit(1)
	}

	// Token store (in-memory, loaded from JSON file)
	tokens := server.NewFileTokenStore(filepath.Join(cfg.DBRoot, "tokens.json"), logger)
	if err := tokens.Load(); err != nil {
		logger.Warn("no token store loaded, starting empty", "error", err)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.MaxUploadBytes = cfg.MaxUploadBytes
	srvCfg.RequestsPerMinute = cfg.RequestsPerMinute
	srvCfg.AdminToken = *adminToken
	if len(cfg.WebhookURLs) > 0 {
		srvCfg.Webhooks = server.NewWebhookNotifier(&server.WebhookConfig{URLs: cfg.WebhookURLs}, logger)
		logger.Info("webhooks configured", "count", len(cfg.WebhookURLs))
	}

	ready := &server.Readiness{}
	h, handlerCleanup := server.Handler(v, tokens, ready, srvCfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		// The recovery scan must finish before any request can race it,
		// so it runs ahead of the listener.
		res, err := v.Scan(ctx, cfg.PendingGrace.Duration())
		if err != nil {
			logger.Error("startup recovery scan failed", "error", err)
			os.Exit(1)
		}
		logger.Info("startup recovery scan complete",
			"blobs", res.BlobsScanned,
			"entries", res.EntriesScanned,
			"orphans_removed", res.OrphansRemoved,
			"dangling_marked", res.DanglingMarked)
		ready.Set()

		logger.Info("starting recvault-server",
			"listen", cfg.Listen,
			"recordings_root", cfg.RecordingsRoot,
			"db_root", cfg.DBRoot)
		var serveErr error
		if *tlsCert != "" && *tlsKey != "" {
			serveErr = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("server error", "error", serveErr)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if err := closeStores(); err != nil {
		logger.Error("failed to close stores", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
