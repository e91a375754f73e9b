package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ztoken-ledger/internal/api"
	"ztoken-ledger/internal/config"
	"ztoken-ledger/internal/domain"
	"ztoken-ledger/internal/engine"
	"ztoken-ledger/internal/feed"
	"ztoken-ledger/internal/identity"
	"ztoken-ledger/internal/ledger"
	"ztoken-ledger/internal/observability"
)

var serveConf = &config.ServeConfig{}

func init() {
	config.SetupLogFlags(&serveConf.Log, serveCmd)
	config.SetupStorageFlags(&serveConf.Storage, serveCmd)
	config.SetupPostgresFlags(&serveConf.Postgres, serveCmd)
	config.SetupClickHouseFlags(&serveConf.ClickHouse, serveCmd)
	config.SetupLedgerFlags(&serveConf.Ledger, serveCmd)
	config.SetupServerFlags(&serveConf.Server, serveCmd)

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the ledger API, the commit feed and metrics.",
	Long: `Serves the JSON API on server.addr, the websocket commit feed on /ws/commits and
Prometheus metrics on server.metrics-addr. Callers identify themselves with the
X-Ledger-Principal header.`,
	PreRunE: setupServe,
	RunE:    serve,
	PostRun: closeLogger,
}

var serveLogger zerolog.Logger

func setupServe(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, viperConf)

	if err := serveConf.Validate(); err != nil {
		return err
	}

	logger, err := setupLogger(serveConf.Log)
	if err != nil {
		return err
	}
	serveLogger = logger

	warnIgnoredKeys(logger, serveConf.CheckSuperfluousKeys(viperConf.AllKeys()))
	return nil
}

func serve(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := serveLogger

	stores, err := openStores(ctx, serveConf.Storage, serveConf.Postgres, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	hub := feed.NewHub(nil, logger)
	defer hub.Close()

	observers := []ledger.CommitObserver{observability.DefaultMetrics, hub}

	journal, closeJournal, err := openJournal(ctx, serveConf.ClickHouse)
	if err != nil {
		return err
	}
	defer closeJournal()
	if journal != nil {
		observers = append(observers, ledger.NewJournalObserver(journal))
		logger.Info().Msg("commit journal enabled")
	}

	var parties identity.Resolver
	if len(serveConf.Ledger.Parties) > 0 {
		parties = identity.NewStaticResolver(serveConf.Ledger.Parties...)
	}

	eng, err := engine.New(engine.Options{
		Issuer:       domain.Principal(serveConf.Ledger.Issuer),
		TokenStore:   stores.tokens,
		AccountStore: stores.accounts,
		HoldingStore: stores.holdings,
		Parties:      parties,
		MaxRetries:   serveConf.Ledger.MaxRetries,
		Observers:    observers,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	apiOpts := api.Options{Engine: eng, Logger: logger, Feed: hub}
	if serveConf.Server.MetricsAddr == "" {
		apiOpts.Metrics = observability.Handler()
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go runHTTPServer(ctx, logger, "metrics", serveConf.Server.MetricsAddr, mux)
	}

	return runHTTPServer(ctx, logger, "api", serveConf.Server.Addr, api.NewServer(apiOpts))
}

// runHTTPServer serves handler until ctx is done, then shuts down gracefully.
func runHTTPServer(ctx context.Context, logger zerolog.Logger, name, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("server", name).Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error().Err(err).Str("server", name).Msg("http server failed")
		return err
	case <-ctx.Done():
	}

	logger.Info().Str("server", name).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("server", name).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
