package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"account_sync/internal/activity"
	"account_sync/internal/config"
	"account_sync/internal/fingerprint"
	"account_sync/internal/httpapi"
	"account_sync/internal/importer"
	"account_sync/internal/lock"
	"account_sync/internal/logbus"
	"account_sync/internal/notify"
	"account_sync/internal/profile"
	"account_sync/internal/store/sqlite"
	"account_sync/internal/vision"
)

func main() {
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "./config.yaml", "path to config.yaml")
	addr := flags.String("addr", "", "listen address, overrides server.addr")
	logLevel := flags.String("log-level", "", "log level, overrides log.level")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	bus := logbus.NewWithLogger(200, logbus.NewLogger(cfg.Log.Level, cfg.Log.Pretty))
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	token, err := resolveVisionToken(ctx, cfg.Vision, store)
	if err != nil {
		log.Fatalf("resolve vision token: %v", err)
	}
	if token == "" {
		bus.Log("warn", "vision token is empty; profile operations will be rejected by Vision", nil)
	}
	visionClient := vision.New(cfg.Vision, token, bus)

	locker, closeLocker, err := newLocker(ctx, cfg.Locks)
	if err != nil {
		log.Fatalf("account locks: %v", err)
	}
	defer closeLocker()

	profiles := profile.New(profile.Options{
		Store:               store,
		Vision:              visionClient,
		Fingerprints:        fingerprint.New(visionClient),
		Locker:              locker,
		Bus:                 bus,
		DeleteOnSyncFailure: cfg.Profile.DeleteOnSyncFailure,
	})

	notifier := notify.NewEmailNotifier(store, bus, cfg.Notify.SummaryWindow())

	api := httpapi.New(httpapi.Options{
		Cfg:      cfg,
		Bus:      bus,
		Store:    store,
		Profiles: profiles,
		Importer: importer.NewBatcher(store, bus, notifier),
		Activity: activity.NewSelector(store, bus, cfg.Activity.IdleThreshold()),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	_ = notifier.Close(shutdownCtx)
	bus.Log("info", "server stopped", nil)
	bus.Close()
}

// resolveVisionToken prefers the configured token and falls back to the
// api_keys settings row.
func resolveVisionToken(ctx context.Context, cfg config.VisionConfig, store *sqlite.Store) (string, error) {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return t, nil
	}
	keys, ok, err := store.GetAPIKeys(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(keys.VisionKey), nil
}

func newLocker(ctx context.Context, cfg config.LocksConfig) (lock.Locker, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.DialRedis(ctx, cfg.RedisURL, cfg.TTL())
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return r, func() { _ = r.Close() }, nil
}
