package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/annel0/spawnkeeper/internal/eventbus"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/go-redis/redis/v8"
)

// ErrNotMirrored мир ещё не попадал в Redis.
var ErrNotMirrored = NewCacheError("спавн мира не найден в Redis")

// RedisConfig параметры подключения зеркала.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// MirrorStats счётчики зеркала.
type MirrorStats struct {
	Writes int64 `json:"writes"`
	Errors int64 `json:"errors"`
}

// SpawnMirror односторонняя read-реплика спавнов в Redis.
// Каждое событие SpawnChanged записывается в хеш <prefix><world>
// с полями pitch, yaw, x, y, z. В хранилище данные обратно не возвращаются.
type SpawnMirror struct {
	client redis.Cmdable
	prefix string
	logger *logging.Logger
	sub    eventbus.Subscription

	writes int64
	errors int64
}

// NewRedisClient создаёт клиента и проверяет соединение.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewSpawnMirror создаёт зеркало поверх любого redis.Cmdable.
func NewSpawnMirror(client redis.Cmdable, prefix string, logger *logging.Logger) *SpawnMirror {
	if logger == nil {
		logger = logging.GetComponentLogger("cache")
	}
	return &SpawnMirror{client: client, prefix: prefix, logger: logger}
}

// Start подписывает зеркало на SpawnChanged.
func (m *SpawnMirror) Start(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{
		Types:   []string{eventbus.TypeSpawnChanged},
		Sources: []string{spawn.EventSource},
	}, func(ctx context.Context, ev *eventbus.Envelope) {
		if err := m.Apply(ctx, ev.Payload); err != nil {
			m.logger.Warn("Зеркалирование спавна в Redis: %v", err)
		}
	})
	if err != nil {
		return err
	}
	m.sub = sub
	m.logger.Info("Redis-зеркало спавнов запущено (префикс %q)", m.prefix)
	return nil
}

// Stop отписывает зеркало от шины.
func (m *SpawnMirror) Stop() {
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}
}

// Apply записывает полезную нагрузку SpawnChanged в Redis.
func (m *SpawnMirror) Apply(ctx context.Context, payload []byte) error {
	var ev spawn.SpawnChangedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		atomic.AddInt64(&m.errors, 1)
		return fmt.Errorf("разбор SpawnChanged: %w", err)
	}
	if ev.World == "" {
		atomic.AddInt64(&m.errors, 1)
		return ErrInvalidKey
	}

	if err := m.client.HSet(ctx, m.Key(ev.World), hashFields(ev)...).Err(); err != nil {
		atomic.AddInt64(&m.errors, 1)
		return fmt.Errorf("redis hset %s: %w", m.Key(ev.World), err)
	}
	atomic.AddInt64(&m.writes, 1)
	return nil
}

// Lookup читает зеркалированную запись мира.
func (m *SpawnMirror) Lookup(ctx context.Context, world string) (spawn.SpawnChangedEvent, error) {
	values, err := m.client.HGetAll(ctx, m.Key(world)).Result()
	if err != nil {
		return spawn.SpawnChangedEvent{}, fmt.Errorf("redis hgetall %s: %w", m.Key(world), err)
	}
	if len(values) == 0 {
		return spawn.SpawnChangedEvent{}, ErrNotMirrored
	}
	return parseHash(world, values)
}

// Key ключ хеша мира.
func (m *SpawnMirror) Key(world string) string {
	return m.prefix + world
}

// Stats текущие счётчики.
func (m *SpawnMirror) Stats() MirrorStats {
	return MirrorStats{
		Writes: atomic.LoadInt64(&m.writes),
		Errors: atomic.LoadInt64(&m.errors),
	}
}

func hashFields(ev spawn.SpawnChangedEvent) []interface{} {
	return []interface{}{
		"pitch", strconv.FormatFloat(float64(ev.Pitch), 'f', -1, 32),
		"yaw", strconv.FormatFloat(float64(ev.Yaw), 'f', -1, 32),
		"x", strconv.Itoa(ev.X),
		"y", strconv.Itoa(ev.Y),
		"z", strconv.Itoa(ev.Z),
	}
}

func parseHash(world string, values map[string]string) (spawn.SpawnChangedEvent, error) {
	ev := spawn.SpawnChangedEvent{World: world}

	floats := map[string]*float32{"pitch": &ev.Pitch, "yaw": &ev.Yaw}
	for field, dst := range floats {
		f, err := strconv.ParseFloat(values[field], 32)
		if err != nil {
			return spawn.SpawnChangedEvent{}, fmt.Errorf("поле %s мира %s: %w", field, world, err)
		}
		*dst = float32(f)
	}

	ints := map[string]*int{"x": &ev.X, "y": &ev.Y, "z": &ev.Z}
	for field, dst := range ints {
		n, err := strconv.Atoi(values[field])
		if err != nil {
			return spawn.SpawnChangedEvent{}, fmt.Errorf("поле %s мира %s: %w", field, world, err)
		}
		*dst = n
	}
	return ev, nil
}
