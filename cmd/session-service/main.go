package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"session-service/internal/cache"
	"session-service/internal/config"
	"session-service/internal/events"
	"session-service/internal/metrics"
	logctx "session-service/internal/pkg/log"
	"session-service/internal/pkg/redact"
	"session-service/internal/service"
	"session-service/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Миграции и подключение к БД с таймаутом.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	err := postgres.RunMigrations(dbCtx, cfg.DB.DatabaseURL)
	if err != nil {
		dbCancel()
		log.Error("migrations_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("postgres_connected")

	// Шина событий: метрики и аудит живут подписками, сервис о них не знает.
	bus := events.NewBus(log)

	m := metrics.New(prometheus.DefaultRegisterer)
	m.Observe(bus)

	registerAuditSubscribers(bus, log)

	// Реестр типов пользователей из конфигурации.
	registry := service.NewRegistry()
	for _, userType := range cfg.Auth.UserTypes {
		registry.Register(userType, str.Users(userType))
	}

	srvc, err := service.New(str, registry, bus, cfg.Auth)
	if err != nil {
		log.Error("service_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("service_initialized")

	// Кэш refresh-токенов (опционально).
	if cfg.Redis.RedisURL != "" {
		rcache, err := cache.NewRedisCache(cfg.Redis.RedisURL, "")
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = rcache.Close() }()
		srvc.SetRefreshCache(rcache)
		log.Info("redis_connected")
	}

	// Фоновая очистка просроченных refresh-токенов.
	startCleanupJanitor(rootCtx, srvc, log, cfg.Cleanup.Interval)

	var ready int32 // 0 — not ready; 1 — ready
	httpAddr := cfg.HTTP.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// registerAuditSubscribers подписывает аудит безопасности на ключевые
// события. Учётные данные в лог не попадают, e-mail маскируется.
func registerAuditSubscribers(bus *events.Bus, log *slog.Logger) {
	bus.Subscribe(events.LoginFailed, func(_ context.Context, e events.Event) {
		ev, ok := e.(events.LoginFailedEvent)
		if !ok {
			return
		}

		log.Warn("login_failed",
			slog.String("user_type", ev.UserType),
			slog.String("email", redact.Email(ev.Fields["email"])),
			slog.String("reason", ev.Reason),
		)
	})

	bus.Subscribe(events.TokenFamilyRevoked, func(_ context.Context, e events.Event) {
		ev, ok := e.(events.TokenFamilyRevokedEvent)
		if !ok {
			return
		}

		log.Warn("token_family_revoked",
			slog.String("family_id", ev.FamilyID),
			slog.Int("tokens", len(ev.Tokens)),
		)
	})
}

// startCleanupJanitor запускает фоновую задачу периодической очистки
// просроченных refresh-токенов.
func startCleanupJanitor(ctx context.Context, srvc *service.Service, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	ctx = logctx.Into(ctx, log)

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				removed, err := srvc.CleanupExpiredTokens(ctx)
				if err != nil {
					log.Error("cleanup_failed", slog.String("err", err.Error()))
					continue
				}
				if removed > 0 {
					log.Info("cleanup_completed", slog.Int("removed", removed))
				}
			}
		}
	}()
}
