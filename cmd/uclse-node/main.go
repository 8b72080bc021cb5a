// Command uclse-node launches one UCLSE node process: it loads
// configuration from the environment (no YAML node profile is loaded
// here, even when UCLSE_PROFILE is set), opens the SQLite
// UserCode store, wires the Policy Binder, Sandbox Runtime, Nested
// Job Dispatcher, and Result & Log Surface together via
// pkg/orchestration.InProcessLauncher, and serves the request surface
// (pkg/api) over HTTP.
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/uclse/internal/config"
	"github.com/Mindburn-Labs/uclse/pkg/api"
	"github.com/Mindburn-Labs/uclse/pkg/contracts"
	"github.com/Mindburn-Labs/uclse/pkg/observability"
	"github.com/Mindburn-Labs/uclse/pkg/orchestration"
	"github.com/Mindburn-Labs/uclse/pkg/usercode"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", "error", err, "url", cfg.DatabaseURL)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := usercode.NewSQLiteStore(db)
	if err != nil {
		logger.Error("migrate store", "error", err)
		os.Exit(1)
	}

	nodeType := contracts.NodeTypeDomain
	if cfg.NodeType == "enclave" {
		nodeType = contracts.NodeTypeEnclave
	}

	self := contracts.NodeIdentity{
		NodeName:  cfg.NodeUID,
		NodeID:    cfg.NodeUID,
		VerifyKey: contracts.NewVerifyKey(mustNodeSigningKey()),
	}

	launcher := orchestration.NewInProcessLauncher()
	handle, err := launcher.Launch(orchestration.LaunchConfig{
		NodeUID:           cfg.NodeUID,
		NodeType:          nodeType,
		Self:              self,
		DefaultWorkerPool: cfg.DefaultWorkerPool,
		Store:             store,
	})
	if err != nil {
		logger.Error("launch node", "error", err)
		os.Exit(1)
	}
	defer func() { _ = handle.Land() }()

	obsProvider, err := observability.New(ctx, &observability.Config{
		ServiceName: "uclse-node",
		NodeUID:     cfg.NodeUID,
		SampleRate:  1.0,
		Enabled:     true,
	})
	if err != nil {
		logger.Error("init observability", "error", err)
		os.Exit(1)
	}
	defer func() { _ = obsProvider.Shutdown(ctx) }()

	svc := api.NewService(handle.Pipeline(), handle.Executor(), handle.Jobs(), handle.Logs(), obsProvider)
	server := api.NewServer(svc)

	mux := http.NewServeMux()
	server.Routes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("uclse-node listening", "port", cfg.Port, "node_uid", cfg.NodeUID, "node_type", cfg.NodeType)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// mustNodeSigningKey generates an ephemeral Ed25519 key for this
// node's identity. A production deployment persists and rotates this
// key via the user/session authority; this stands in so an
// in-process node always has a well-formed NodeIdentity.VerifyKey.
func mustNodeSigningKey() ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return pub
}
