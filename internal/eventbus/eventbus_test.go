package eventbus

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/spawnkeeper/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversMatchingEvents(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	received := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypeSpawnChanged}}, func(ctx context.Context, ev *Envelope) {
		received <- ev
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnReloaded, nil)))
	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnChanged, []byte(`{"world":"world"}`))))

	select {
	case ev := <-received:
		assert.Equal(t, TypeSpawnChanged, ev.EventType)
		assert.Equal(t, "spawn", ev.Source)
		assert.NotEmpty(t, ev.ID)
		assert.JSONEq(t, `{"world":"world"}`, string(ev.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}

	select {
	case ev := <-received:
		t.Fatalf("получено событие не по фильтру: %s", ev.EventType)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Eventually(t, func() bool {
		return bus.Metrics().Published == 2 && bus.Metrics().Consumed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	calls := make(chan struct{}, 1)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		calls <- struct{}{}
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnChanged, nil)))

	select {
	case <-calls:
		t.Fatal("отписанный обработчик вызван")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnChanged, nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 1),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	// dispatchLoop не запущен: буфер не разгружается
	ctx := context.Background()

	require.NoError(t, mb.Publish(ctx, NewEnvelope("spawn", TypeSpawnChanged, nil)))

	low := NewEnvelope("spawn", TypeSpawnChanged, nil)
	low.Priority = 1
	require.NoError(t, mb.Publish(ctx, low))

	high := NewEnvelope("spawn", TypeSpawnChanged, nil)
	high.Priority = 9
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, mb.Publish(cctx, high), context.DeadlineExceeded)

	stats := mb.Metrics()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 1, stats.InFlight)
}

func TestMetricsExporterCollect(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnChanged, nil)))
	prev := me.collect(Stats{})
	assert.Equal(t, float64(1), testutil.ToFloat64(me.published))

	me.collect(prev)
	assert.Equal(t, float64(1), testutil.ToFloat64(me.published))
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	var buf safeBuffer
	logger := logging.NewWriterLogger("eventbus", &buf)
	logger.SetLevels(logging.DEBUG, logging.DEBUG)

	sub, err := StartLoggingListener(bus, logger)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("spawn", TypeSpawnChanged, nil)))
	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("SpawnChanged src=spawn"))
	}, 2*time.Second, 10*time.Millisecond)
}

// safeBuffer потокобезопасный буфер для логгера, пишущего из горутин шины.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
