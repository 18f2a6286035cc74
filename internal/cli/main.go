package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/studio/internal/config"
	"github.com/jo-hoe/studio/internal/fakestudio"
)

// Main runs the command line with args (without the program name) and
// returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("studio", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { Usage(stderr) }
	cfgPath := global.String("config", "", "config file, defaults to $STUDIO_CONFIG or studio.yaml")
	level := global.String("log-level", "", "overrides logLevel from the config")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	rest := global.Args()
	if len(rest) > 0 && rest[0] == "fake-server" {
		if err := serveFake(ctx, logger, cfg); err != nil {
			logger.Error("fake server", "err", err)
			return 1
		}
		return 0
	}

	app, err := New(cfg, logger, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer func() { _ = app.Close() }()

	if err := app.Run(ctx, rest); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// serveFake runs the in-memory backend until ctx is done.
func serveFake(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	httpSrv := fakestudio.New(logger, cfg.Fake).NewHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake studio listening", "address", cfg.Fake.Address, "admin", cfg.Fake.AdminEmail)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("fake studio stopped")
	return nil
}
