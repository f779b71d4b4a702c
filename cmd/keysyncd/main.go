package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/keysync/internal/config"
	"github.com/felixgeelhaar/keysync/internal/daemon"
	"github.com/felixgeelhaar/keysync/internal/events"
	"github.com/felixgeelhaar/keysync/internal/pending"
	"github.com/felixgeelhaar/keysync/internal/pet"
	"github.com/felixgeelhaar/keysync/internal/reconcile"
	"github.com/felixgeelhaar/keysync/internal/remote"
	"github.com/felixgeelhaar/keysync/internal/storage/cache"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

const pidFileName = "keysyncd.pid"

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	keysyncDir, err := config.EnsureKeysyncDir()
	if err != nil {
		return fmt.Errorf("ensure keysync dir: %w", err)
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := setupLogging(keysyncDir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	pidPath := filepath.Join(keysyncDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, closeStore, err := openSlot(cfg, keysyncDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStore()

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.URL,
		UserID:  cfg.Remote.UserID,
		Timeout: cfg.Remote.Timeout(),
	})

	var producer *events.Producer
	if cfg.Events.Enabled {
		conn, err := events.Connect(cfg.Events.BrokerURL)
		if err != nil {
			// Events are best-effort; the daemon runs without them.
			slog.Warn("event broker unavailable, events disabled", "error", err)
		} else {
			defer conn.Close()
			producer = events.NewProducer(conn, nil)
		}
	}

	engine := reconcile.New(cache.New(store, nil), pending.New(store, nil), client, nil)

	server := daemon.NewServer(daemon.Deps{
		Config:       cfg,
		Engine:       engine,
		Pets:         pet.New(store, nil),
		Connectivity: client,
		Producer:     producer,
	})

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// openSlot builds the configured slot backend under ~/.keysync/data.
func openSlot(cfg *config.LocalConfig, keysyncDir string) (slot.Slot, func(), error) {
	dataDir := filepath.Join(keysyncDir, "data")

	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := slot.OpenSQLiteSlot(filepath.Join(dataDir, "keysync.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := slot.NewFileSlot(dataDir, cfg.Storage.MaxBytes)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging writes JSON records to ~/.keysync/logs/keysyncd.log and
// mirrors them as text on stderr for foreground runs.
func setupLogging(keysyncDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(keysyncDir, "logs", "keysyncd.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	handler := &multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		},
	}
	slog.SetDefault(slog.New(handler))

	return logFile, nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// multiHandler fans one record out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
