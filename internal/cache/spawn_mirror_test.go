package cache

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/annel0/spawnkeeper/internal/eventbus"
	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/annel0/spawnkeeper/internal/spawn"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHashes реализует только HSet/HGetAll из redis.Cmdable.
type fakeHashes struct {
	redis.Cmdable

	mu     sync.Mutex
	hashes map[string]map[string]string
}

func newFakeHashes() *fakeHashes {
	return &fakeHashes{hashes: make(map[string]map[string]string)}
}

func (f *fakeHashes) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHashes) HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewStringStringMapResult(out, nil)
}

func (f *fakeHashes) get(key string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[key]
}

func newTestMirror() (*SpawnMirror, *fakeHashes) {
	fake := newFakeHashes()
	return NewSpawnMirror(fake, "spawn:", logging.NewWriterLogger("cache", io.Discard)), fake
}

func TestSpawnMirrorApplyAndLookup(t *testing.T) {
	mirror, fake := newTestMirror()
	ctx := context.Background()

	payload, err := json.Marshal(spawn.SpawnChangedEvent{World: "world", X: 10, Y: 64, Z: -10, Pitch: 45, Yaw: -12.5})
	require.NoError(t, err)
	require.NoError(t, mirror.Apply(ctx, payload))

	assert.Equal(t, map[string]string{
		"pitch": "45",
		"yaw":   "-12.5",
		"x":     "10",
		"y":     "64",
		"z":     "-10",
	}, fake.get("spawn:world"))

	got, err := mirror.Lookup(ctx, "world")
	require.NoError(t, err)
	assert.Equal(t, spawn.SpawnChangedEvent{World: "world", X: 10, Y: 64, Z: -10, Pitch: 45, Yaw: -12.5}, got)
	assert.Equal(t, MirrorStats{Writes: 1}, mirror.Stats())
}

func TestSpawnMirrorLookupMissing(t *testing.T) {
	mirror, _ := newTestMirror()

	_, err := mirror.Lookup(context.Background(), "world_nether")
	assert.ErrorIs(t, err, ErrNotMirrored)
	assert.True(t, IsCacheMiss(err))
}

func TestSpawnMirrorRejectsBadPayload(t *testing.T) {
	mirror, _ := newTestMirror()
	ctx := context.Background()

	assert.Error(t, mirror.Apply(ctx, []byte("{")))
	assert.ErrorIs(t, mirror.Apply(ctx, []byte(`{"world":""}`)), ErrInvalidKey)
	assert.Equal(t, MirrorStats{Errors: 2}, mirror.Stats())
}

func TestParseHashRejectsGarbage(t *testing.T) {
	_, err := parseHash("world", map[string]string{"pitch": "x", "yaw": "0", "x": "0", "y": "0", "z": "0"})
	assert.Error(t, err)

	_, err = parseHash("world", map[string]string{"pitch": "0", "yaw": "0", "x": "1.5", "y": "0", "z": "0"})
	assert.Error(t, err)
}

func TestSpawnMirrorFollowsBus(t *testing.T) {
	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()

	mirror, fake := newTestMirror()
	require.NoError(t, mirror.Start(context.Background(), bus))
	defer mirror.Stop()

	payload, err := json.Marshal(spawn.SpawnChangedEvent{World: "world", Y: 64, Pitch: 1, Yaw: 2})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope(spawn.EventSource, eventbus.TypeSpawnChanged, payload)))
	// Чужой источник игнорируется
	require.NoError(t, bus.Publish(context.Background(), eventbus.NewEnvelope("other", eventbus.TypeSpawnChanged, payload)))

	assert.Eventually(t, func() bool {
		return fake.get("spawn:world")["yaw"] == "2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool {
		return mirror.Stats().Writes > 1
	}, 100*time.Millisecond, 10*time.Millisecond)
}
