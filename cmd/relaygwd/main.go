// Command relaygwd is the gateway daemon: it opens local.db, loads every
// configured provider/connection/alias/combo/pricing entry, wires the
// Chat Handler and HTTP router, and serves until signaled to stop.
//
// Grounded on the teacher's main.go init-then-serve shape (sequential
// subsystem init, each failure a Fatal log line) and common/graceful's
// shutdown idiom, adapted here to a plain net/http.Server instead of
// gin.Engine.Run so SIGINT/SIGTERM can trigger internal/graceful.Drain
// before the process exits.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	laiserr "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"

	"github.com/1-api-gateway/relaygw/internal/chat"
	"github.com/1-api-gateway/relaygw/internal/config"
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/graceful"
	"github.com/1-api-gateway/relaygw/internal/httpserver"
	"github.com/1-api-gateway/relaygw/internal/logger"
	"github.com/1-api-gateway/relaygw/internal/metrics"
	"github.com/1-api-gateway/relaygw/internal/pricing"
	"github.com/1-api-gateway/relaygw/internal/provider"
	"github.com/1-api-gateway/relaygw/internal/reqlog"
	"github.com/1-api-gateway/relaygw/internal/store"
	"github.com/1-api-gateway/relaygw/internal/translate"
	"github.com/1-api-gateway/relaygw/internal/usage"
)

func main() {
	log := logger.Logger
	log.Info("relaygwd starting")

	home, err := config.Home()
	if err != nil {
		log.Fatal("failed to resolve state directory", zap.Error(err))
	}

	db, err := store.Open(filepath.Join(home, "local.db"))
	if err != nil {
		log.Fatal("failed to open local.db", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close local.db", zap.Error(err))
		}
	}()

	reg := provider.NewRegistry()
	if err := db.LoadNodes(reg); err != nil {
		log.Fatal("failed to load compatible nodes", zap.Error(err))
	}

	connStore := credential.NewStore()
	if err := loadConnections(db, reg, connStore); err != nil {
		log.Fatal("failed to load connections", zap.Error(err))
	}

	table := pricing.NewTable()
	if err := db.LoadPricing(table); err != nil {
		log.Fatal("failed to load pricing table", zap.Error(err))
	}

	usageRecorder := usage.NewRecorder(filepath.Join(home, "usage.json"), 10_000, table, metrics.Global, log)
	if err := usageRecorder.Load(); err != nil {
		log.Fatal("failed to load usage history", zap.Error(err))
	}

	ledger := reqlog.NewLedger(filepath.Join(home, "log.txt"))

	core := &chat.Core{
		Providers:  reg,
		Translator: translate.NewRegistry(),
		Dispatch:   chat.NewDispatcher(),
		Usage:      usageRecorder,
		Ledger:     ledger,
		Log:        log,
	}

	handler := &chat.Handler{
		Aliases:     db,
		Providers:   reg,
		Connections: connStore,
		Core:        core,
		Persist:     db.PutConnection,
		Log:         log,
	}

	srv := &httpserver.Server{
		Handler:     handler,
		Store:       db,
		Connections: connStore,
		Providers:   reg,
		Pricing:     table,
		Usage:       usageRecorder,
		Log:         log,
	}

	graceful.Init(usageRecorder, log)

	ln, err := net.Listen("tcp", ":"+config.Port)
	if err != nil {
		log.Error("port already in use", zap.String("port", config.Port), zap.Error(err))
		os.Exit(2)
	}

	httpSrv := &http.Server{Handler: srv.NewRouter()}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()
	log.Info("server started", zap.String("address", "http://localhost:"+config.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server stopped unexpectedly", zap.Error(err))
		}
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		graceful.SetDraining()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", zap.Error(err))
		}
		if err := graceful.Drain(shutdownCtx); err != nil {
			log.Error("graceful drain did not complete in time", zap.Error(err))
		}
	}

	log.Info("relaygwd stopped")
}

// loadConnections populates connStore from every persisted connection,
// grouped by provider id (internal/credential.Store keeps one slice per
// provider, spec.md §4.4's fallback ordering operates within that slice).
func loadConnections(db *store.DB, reg *provider.Registry, connStore *credential.Store) error {
	conns, err := db.LoadConnections()
	if err != nil {
		return laiserr.Wrap(err, "load connections")
	}

	byProvider := make(map[string][]*credential.Connection)
	for _, c := range conns {
		byProvider[c.ProviderId] = append(byProvider[c.ProviderId], c)
	}
	for providerId, pconns := range byProvider {
		if _, ok := reg.Get(providerId); !ok {
			continue
		}
		connStore.Replace(providerId, pconns)
	}

	return nil
}
