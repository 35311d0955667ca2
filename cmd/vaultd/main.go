// Command vaultd serves vaults over HTTP. It stores opaque sealed payloads
// and checks write signatures; it never holds a key that can open them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vetsin/code-jam-2025/internal/platform"
	"github.com/vetsin/code-jam-2025/internal/server"
	"github.com/vetsin/code-jam-2025/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dir := flag.String("dir", "", "vault directory for the file backend (overrides config)")
	memory := flag.Bool("memory", false, "keep vaults in memory only (development)")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dir != "" {
		cfg.Store.Dir = *dir
		cfg.Store.Backend = server.BackendFile
	}
	if *memory {
		cfg.Store.Backend = server.BackendMemory
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	log.Logger = logger

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("vaultd stopped")
	}
}

func newLogger(c server.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log.level: %w", err)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	var l zerolog.Logger
	if c.Format == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return l.Level(level).With().Timestamp().Logger(), nil
}

func run(cfg *server.Config, logger zerolog.Logger) error {
	if err := platform.DisableCoreDumps(); err != nil {
		logger.Warn().Err(err).Msg("could not disable core dumps")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := server.New(*cfg, store, logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("backend", cfg.Store.Backend).Msg("vaultd listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := srv.Audit().Verify(); err != nil {
		logger.Error().Err(err).Msg("audit log failed verification")
	}
	return nil
}

func openStore(ctx context.Context, cfg *server.Config, logger zerolog.Logger) (storage.Store, func(), error) {
	switch cfg.Store.Backend {
	case server.BackendMemory:
		logger.Warn().Msg("memory backend: vaults are lost on exit")
		return storage.NewMemoryStore(), func() {}, nil

	case server.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m := cfg.Store.Mongo
		ms, err := storage.NewMongoStore(connectCtx, m.URI, m.Database, m.Collection, logger)
		if err != nil {
			return nil, nil, err
		}
		return ms, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Close(closeCtx); err != nil {
				logger.Warn().Err(err).Msg("mongo disconnect")
			}
		}, nil

	default:
		fs, err := storage.NewFileStore(cfg.Store.Dir,
			storage.WithLockTimeout(cfg.Store.LockTimeout),
			storage.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("dir", fs.Root()).Msg("file backend")
		return fs, func() {}, nil
	}
}
