// Entry point for the sisswatch service: tariff ingestion pipeline plus a
// small admin HTTP API. Modes: one-shot (-run), daemon with directory
// watcher (-watch), or plain HTTP server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/andaqua/sisswatch/ledger"
	"github.com/andaqua/sisswatch/vigia"
	"github.com/andaqua/sisswatch/watch"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	oneShot := flag.Bool("run", false, "run all stages once and exit")
	watchMode := flag.Bool("watch", false, "watch the PDF directory and re-analyze on new files")
	flag.Parse()

	// .env is optional; real env always wins.
	_ = godotenv.Load()

	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	cfg, err := vigia.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if v := os.Getenv("PORTAL_URL"); v != "" {
		cfg.PortalURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	svc := vigia.New(cfg, logger, vigia.WithLedger(store))

	if *oneShot {
		sum := svc.RunAll(ctx)
		out, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	if *watchMode {
		if err := os.MkdirAll(cfg.PDFDir, 0o755); err != nil {
			return err
		}
		w := watch.New(cfg.PDFDir, watch.Options{Logger: logger})
		go func() {
			if err := w.Run(ctx, func(ctx context.Context) error {
				res := svc.AnalyzePDFs(ctx)
				if !res.Success {
					return errors.New(res.Error)
				}
				return nil
			}); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	var authHash []byte
	if pw := os.Getenv("AUTH_PASSWORD"); pw != "" {
		authHash, err = bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("AUTH_PASSWORD not set, admin API is unauthenticated")
	}

	addr := ":" + env("PORT", "8086")
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(svc, logger, authHash),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
