package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/api"
	"github.com/shehryarbajwa/tabhost/internal/config"
	"github.com/shehryarbajwa/tabhost/internal/engine"
	"github.com/shehryarbajwa/tabhost/internal/engine/docker"
	"github.com/shehryarbajwa/tabhost/internal/engine/memengine"
	"github.com/shehryarbajwa/tabhost/internal/identity"
	"github.com/shehryarbajwa/tabhost/internal/lifecycle"
	"github.com/shehryarbajwa/tabhost/internal/logging"
	"github.com/shehryarbajwa/tabhost/internal/loop"
	"github.com/shehryarbajwa/tabhost/internal/metrics"
	"github.com/shehryarbajwa/tabhost/internal/persist"
	"github.com/shehryarbajwa/tabhost/internal/ratelimit"
	"github.com/shehryarbajwa/tabhost/internal/settings"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tabhost:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, foundEnv, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Config{Level: cfg.Level, Development: cfg.Development})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	if !foundEnv {
		log.Info("no .env file found, using system environment variables")
	}
	log.Info("starting tabhost",
		zap.String("engine", cfg.Kind),
		zap.String("dataDir", cfg.DataDir))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	m := metrics.New()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	control := loop.New(cfg.LoopQueue, log)
	go control.Run(loopCtx)

	eng, err := newEngine(cfg, control, log)
	if err != nil {
		return err
	}

	sessions := persist.NewSessionStore(cfg.SessionPath(), log)
	sessionWriter := persist.NewCoalescer(cfg.SessionDebounce, func(doc models.SessionDocument) error {
		err := sessions.Save(doc)
		m.Write("session", err)
		return err
	}, log.Named("session"))

	settingsStore := persist.NewSettingsStore(cfg.SettingsPath(), log)
	settingsWriter := persist.NewCoalescer(cfg.SettingsDebounce, func(s models.Settings) error {
		err := settingsStore.Save(s)
		m.Write("settings", err)
		return err
	}, log.Named("settings"))
	settingsSvc := settings.NewService(settingsStore.Load(), settingsWriter)

	hub := api.NewHub(cfg.EventBuffer, m, log)
	mgr := lifecycle.NewManager(lifecycle.Options{
		Engine:   eng,
		Identity: identity.NewConfigurator(settingsSvc.Get(), log),
		Settings: settingsSvc,
		Emitter:  hub,
		Saver:    sessionWriter,
		Metrics:  m,
		Logger:   log,
	})

	doc, err := sessions.Load()
	switch {
	case errors.Is(err, persist.ErrNoSession):
		log.Info("no saved session, starting fresh")
	case err != nil:
		log.Warn("failed to load session, starting fresh", zap.Error(err))
		doc = models.SessionDocument{}
	}
	restoreCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	err = control.Do(restoreCtx, func() error {
		mgr.Restore(restoreCtx, doc)
		return nil
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	if cfg.HibernateAfter > 0 {
		go sweepIdle(loopCtx, control, mgr, cfg.HibernateAfter)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimitConfig.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	server := api.NewServer(api.Options{
		Manager:       mgr,
		Loop:          control,
		Hub:           hub,
		Sessions:      sessions,
		SessionWriter: sessionWriter,
		Settings:      settingsSvc,
		Metrics:       m,
		Limiter:       limiter,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}

	var final models.SessionDocument
	if err := control.Do(ctx, func() error {
		final = mgr.Shutdown()
		return nil
	}); err != nil {
		log.Error("failed to stop tabs", zap.Error(err))
	}
	// the last state goes out now rather than after the debounce window
	if len(final.Tabs) > 0 {
		sessionWriter.Schedule(final)
	}
	if err := sessionWriter.Stop(); err != nil {
		log.Error("failed to save session", zap.Error(err))
	}
	if err := settingsWriter.Stop(); err != nil {
		log.Error("failed to save settings", zap.Error(err))
	}

	stopLoop()
	<-control.Done()
	if err := eng.Close(); err != nil {
		log.Warn("failed to close engine", zap.Error(err))
	}

	log.Info("server stopped cleanly")
	return nil
}

// newEngine builds the configured browsing engine. Its callbacks are posted
// to the control loop.
func newEngine(cfg *config.Config, control *loop.Loop, log *zap.Logger) (engine.Engine, error) {
	if cfg.Kind == config.EngineMemory {
		log.Info("using in-memory engine")
		return memengine.New(control.Post), nil
	}

	eng, err := docker.New(docker.Options{
		Image:        cfg.ChromeImage,
		DataDir:      cfg.DataDir,
		MaxLaunches:  cfg.MaxLaunches,
		ReadyTimeout: cfg.ReadyTimeout,
		Dispatch:     control.Post,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := eng.RemoveOrphans(ctx); err != nil {
		log.Warn("failed to remove orphaned containers", zap.Error(err))
	}
	log.Info("ensuring browser image is available", zap.String("image", cfg.ChromeImage))
	if err := eng.EnsureImage(ctx); err != nil {
		eng.Close()
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}
	return eng, nil
}

// sweepIdle hibernates idle background tabs until ctx ends
func sweepIdle(ctx context.Context, control *loop.Loop, mgr *lifecycle.Manager, after time.Duration) {
	interval := after / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			control.Post(func() { mgr.HibernateIdle(after) })
		}
	}
}
