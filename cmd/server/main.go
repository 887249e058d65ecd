package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/spawnkeeper/internal/api"
	"github.com/annel0/spawnkeeper/internal/auth"
	"github.com/annel0/spawnkeeper/internal/cache"
	"github.com/annel0/spawnkeeper/internal/config"
	"github.com/annel0/spawnkeeper/internal/eventbus"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/observability"
	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/annel0/spawnkeeper/internal/vec"
	"github.com/annel0/spawnkeeper/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "spawnkeeper",
		Short:         "Сервер ориентаций точек спавна",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "путь к YAML конфигурации (по умолчанию SPAWN_CONFIG)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Инициализируем систему логирования
	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("server"); err != nil {
		return fmt.Errorf("ошибка инициализации логирования: %w", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	consoleLevel, err := logging.ParseLevel(cfg.Logging.ConsoleLevel)
	if err != nil {
		return err
	}
	fileLevel, err := logging.ParseLevel(cfg.Logging.FileLevel)
	if err != nil {
		return err
	}
	logging.Default().SetLevels(consoleLevel, fileLevel)
	componentLogger := func(name string) *logging.Logger {
		l := logging.GetComponentLogger(name)
		l.SetLevels(consoleLevel, fileLevel)
		return l
	}

	logging.Info("🚀 Запуск сервера спавнов...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry := observability.Noop()
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err = observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Warn("OpenTelemetry недоступен, трейсинг выключен: %v", err)
			shutdownTelemetry = observability.Noop()
		}
	}
	defer shutdownTelemetry(context.Background())

	// === МИРЫ ===
	worlds := world.NewManager()
	for _, wc := range cfg.Worlds {
		worlds.Load(wc.Name, vec.Vec3{X: wc.Spawn.X, Y: wc.Spawn.Y, Z: wc.Spawn.Z})
		logging.Debug("Мир %s загружен, нативный спавн (%d, %d, %d)", wc.Name, wc.Spawn.X, wc.Spawn.Y, wc.Spawn.Z)
	}

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if cfg.EventBus.URL != "" {
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		js, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
		if err != nil {
			return fmt.Errorf("подключение к NATS: %w", err)
		}
		bus = js
		logging.Info("📨 Шина событий: NATS JetStream %s (stream %s)", cfg.EventBus.URL, cfg.EventBus.Stream)
	} else {
		bus = eventbus.NewMemoryBus(256)
		logging.Info("📨 Шина событий: in-memory")
	}
	defer bus.Close()

	busLogger := componentLogger("eventbus")
	if sub, err := eventbus.StartLoggingListener(bus, busLogger); err != nil {
		logging.Warn("Не удалось запустить логирование событий: %v", err)
	} else {
		defer sub.Unsubscribe()
	}

	exporter := eventbus.NewMetricsExporter(bus, prometheus.DefaultRegisterer)
	exporter.Start()
	defer exporter.Stop()

	// === REDIS-ЗЕРКАЛО ===
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logging.Warn("Redis недоступен, зеркало спавнов выключено: %v", err)
		} else {
			defer rdb.Close()
			mirror := cache.NewSpawnMirror(rdb, cfg.Redis.KeyPrefix, componentLogger("cache"))
			if err := mirror.Start(ctx, bus); err != nil {
				logging.Warn("Не удалось подписать Redis-зеркало: %v", err)
			} else {
				defer mirror.Stop()
			}
		}
	}

	// === ХРАНИЛИЩЕ СПАВНОВ ===
	store, err := spawn.NewStore(cfg.Spawn.Path, worlds,
		spawn.WithLogger(componentLogger("spawn")),
		spawn.WithEventBus(bus),
		spawn.WithMetrics(spawn.NewMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		return err
	}
	logging.Info("📍 Файл ориентаций %s: %s", store.Path(), store.LastLoad())

	go store.RunBackups(ctx, cfg.Spawn.BackupDir, cfg.Spawn.BackupInterval(), cfg.Spawn.BackupKeep)

	// === REST API ===
	if cfg.Auth.JWTSecret == "" {
		logging.Warn("🔐 auth.jwt_secret не задан: используется случайный секрет, токены действуют до перезапуска")
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	rest, err := api.NewRestServer(api.Config{
		Addr:      cfg.Server.RESTAddr(),
		Store:     store,
		Server:    worlds,
		Tokens:    tokens,
		BackupDir: cfg.Spawn.BackupDir,
		Service:   cfg.Telemetry.ServiceName,
		Logger:    componentLogger("api"),
	})
	if err != nil {
		return err
	}

	restErr := make(chan error, 1)
	go func() {
		restErr <- rest.Start()
	}()

	logging.Info("✅ Сервер спавнов запущен")
	logging.Info("   🌐 REST API: http://localhost%s", cfg.Server.RESTAddr())
	logging.Info("   ❤️  Health check: http://localhost%s/health", cfg.Server.RESTAddr())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case err := <-restErr:
		if err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
			return err
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
	return nil
}
