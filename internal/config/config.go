package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера спавнов.
type Config struct {
	Spawn     SpawnConfig     `yaml:"spawn"`
	Worlds    []WorldConfig   `yaml:"worlds"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SpawnConfig описывает файл ориентаций спавна и резервные копии.
type SpawnConfig struct {
	Path        string `yaml:"path" env:"SPAWN_PATH"`
	BackupDir   string `yaml:"backup_dir" env:"SPAWN_BACKUP_DIR"`
	BackupEvery int    `yaml:"backup_every_minutes" env:"SPAWN_BACKUP_EVERY_MINUTES"`
	BackupKeep  int    `yaml:"backup_keep" env:"SPAWN_BACKUP_KEEP"`
}

// WorldConfig описывает мир, загружаемый при старте, и его нативную точку спавна.
type WorldConfig struct {
	Name  string     `yaml:"name"`
	Spawn BlockCoord `yaml:"spawn"`
}

type BlockCoord struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

type ServerConfig struct {
	RESTPort int `yaml:"rest_port" env:"SPAWN_REST_PORT"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"SPAWN_JWT_SECRET"`
}

type LoggingConfig struct {
	Dir          string `yaml:"dir" env:"SPAWN_LOG_DIR"`
	ConsoleLevel string `yaml:"console_level" env:"SPAWN_LOG_CONSOLE_LEVEL"`
	FileLevel    string `yaml:"file_level" env:"SPAWN_LOG_FILE_LEVEL"`
}

// EventBusConfig: пустой URL означает in-memory шину.
type EventBusConfig struct {
	URL       string `yaml:"url" env:"SPAWN_NATS_URL"`
	Stream    string `yaml:"stream" env:"SPAWN_NATS_STREAM"`
	Retention int    `yaml:"retention_hours" env:"SPAWN_NATS_RETENTION_HOURS"`
}

// RedisConfig: пустой Addr отключает зеркалирование спавнов в Redis.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"SPAWN_REDIS_ADDR"`
	Password  string `yaml:"password" env:"SPAWN_REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"SPAWN_REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" env:"SPAWN_REDIS_KEY_PREFIX"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"SPAWN_OTEL_ENABLED"`
	ServiceName string `yaml:"service_name" env:"SPAWN_OTEL_SERVICE"`
}

// Default возвращает конфигурацию по умолчанию: один мир "world" со спавном на (0, 64, 0).
func Default() *Config {
	return &Config{
		Spawn: SpawnConfig{
			Path:        "data/spawns.yml",
			BackupDir:   "data/backups",
			BackupEvery: 60,
			BackupKeep:  24,
		},
		Worlds: []WorldConfig{
			{Name: "world", Spawn: BlockCoord{X: 0, Y: 64, Z: 0}},
		},
		Server:   ServerConfig{RESTPort: 8088},
		Logging:  LoggingConfig{Dir: "logs", ConsoleLevel: "INFO", FileLevel: "DEBUG"},
		EventBus: EventBusConfig{Stream: "SPAWNS", Retention: 24},
		Redis:    RedisConfig{KeyPrefix: "spawn:"},
		Telemetry: TelemetryConfig{
			ServiceName: "spawnkeeper",
		},
	}
}

// BackupInterval возвращает период резервного копирования (0 выключает копирование).
func (s SpawnConfig) BackupInterval() time.Duration {
	if s.BackupEvery <= 0 {
		return 0
	}
	return time.Duration(s.BackupEvery) * time.Minute
}

// RESTAddr возвращает адрес для net/http в формате ":port".
func (s ServerConfig) RESTAddr() string {
	return fmt.Sprintf(":%d", s.RESTPort)
}

// Load читает YAML файл конфигурации поверх значений по умолчанию и применяет
// переопределения из переменных окружения.
// Если path == "", используется ENV SPAWN_CONFIG; если и он пуст, только дефолты + ENV.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SPAWN_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет секции значениями из окружения.
// Список миров из окружения не читается.
func (c *Config) applyEnv() error {
	targets := []any{&c.Spawn, &c.Server, &c.Auth, &c.Logging, &c.EventBus, &c.Redis, &c.Telemetry}
	for _, target := range targets {
		if err := env.Parse(target); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

// Validate проверяет обязательные поля.
func (c *Config) Validate() error {
	if c.Spawn.Path == "" {
		return fmt.Errorf("spawn.path не задан")
	}
	if c.Server.RESTPort <= 0 || c.Server.RESTPort > 65535 {
		return fmt.Errorf("недопустимый server.rest_port: %d", c.Server.RESTPort)
	}
	seen := make(map[string]struct{}, len(c.Worlds))
	for _, w := range c.Worlds {
		if w.Name == "" {
			return fmt.Errorf("мир без имени в worlds")
		}
		if _, dup := seen[w.Name]; dup {
			return fmt.Errorf("мир %q указан дважды", w.Name)
		}
		seen[w.Name] = struct{}{}
	}
	return nil
}
