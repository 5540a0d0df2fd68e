//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ibusafrim/internal/composer"
	"ibusafrim/internal/config"
	"ibusafrim/internal/ime"
	"ibusafrim/internal/logging"
	"ibusafrim/internal/metrics"
)

// crashReportsKept bounds the crash directory.
const crashReportsKept = 10

func runEngine(cmd *cobra.Command, o *rootOptions) error {
	loader := config.NewLoader(o.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	defer loader.Close()

	logCfg, err := logging.FromSettings(cfg.Logging, o.verbose)
	if err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	crash := logging.NewCrashHandler("", version, crashReportsKept, logger.Logger)
	var runErr error
	if crash.Recover(func() { runErr = serve(ctx, loader, cfg, o, crash, logger.Logger) }) {
		return errors.New("engine crashed, see the crash report")
	}
	return runErr
}

func serve(ctx context.Context, loader *config.Loader, cfg *config.Config, o *rootOptions, crash *logging.CrashHandler, logger *slog.Logger) error {
	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		srv, err := metrics.Listen(cfg.Metrics.Listen, m, logger.With("component", "metrics"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	src := composer.NewSource(nil, logger.With("component", "dictionary"))
	defer src.Close()

	dictionaries := newDictionaryReloader(src, m, logger)
	dictionaries.Apply(cfg.Dictionary)
	defer dictionaries.Close()

	loader.OnChange(func(next *config.Config) {
		logger.Info("configuration changed", "path", loader.Path())
		dictionaries.Apply(next.Dictionary)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("configuration changes will not be picked up", "error", err)
	} else {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-loader.Errors():
					logger.Warn("configuration not reloaded", "error", err)
				}
			}
		}()
	}

	component, err := cfg.Component()
	if err != nil {
		return err
	}

	registrar, err := ime.NewRegistrar(ime.RegistrarConfig{
		Component:   component,
		ExecByIBus:  o.ibus,
		PageSize:    cfg.Lookup.PageSize,
		Table:       cfg.LookupTable(),
		NewComposer: src.Factory(composer.WithLogger(logger.With("component", "composer"))),
		Observer:    m,
		Panics:      crash,
		Logger:      logger.With("component", "ibus"),
	})
	if err != nil {
		return err
	}
	if err := registrar.Start(ctx); err != nil {
		return err
	}
	defer registrar.Close()

	logger.Info("ibus-afrim started", "version", version, "engine", component.EngineName, "ibus", o.ibus)
	err = registrar.Run(ctx)
	logger.Info("shutting down")
	return err
}
