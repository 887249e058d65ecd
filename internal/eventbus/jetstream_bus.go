package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// subjectPrefix общий префикс subject'ов событий спавна.
const subjectPrefix = "spawn.events"

// JetStreamBus реализует EventBus поверх NATS JetStream.
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	published uint64
	consumed  uint64
	dropped   uint64
}

// ErrStreamNotFound стрим событий ещё не создан сервером спавнов.
var ErrStreamNotFound = errors.New("eventbus: стрим не найден")

// NewJetStreamBus подключается к кластеру NATS и гарантирует наличие стрима.
// url: nats://127.0.0.1:4222, stream: "SPAWNS".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	jb, err := connectJetStream(url, stream)
	if err != nil {
		return nil, err
	}

	// Стрим создаётся при первом запуске (subjects: spawn.events.*)
	if _, err = jb.js.StreamInfo(jb.stream); err != nil {
		_, err = jb.js.AddStream(&nats.StreamConfig{
			Name:      jb.stream,
			Subjects:  []string{subjectPrefix + ".*"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			jb.nc.Drain()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	}

	return jb, nil
}

// OpenJetStreamBus подключается к существующему стриму, не создавая и не меняя его.
// Если стрима нет, возвращает ошибку, оборачивающую ErrStreamNotFound.
func OpenJetStreamBus(url, stream string) (*JetStreamBus, error) {
	jb, err := connectJetStream(url, stream)
	if err != nil {
		return nil, err
	}
	if _, err := jb.js.StreamInfo(jb.stream); err != nil {
		jb.nc.Drain()
		return nil, streamLookupError(jb.stream, err)
	}
	return jb, nil
}

func connectJetStream(url, stream string) (*JetStreamBus, error) {
	if stream == "" {
		stream = "SPAWNS"
	}

	nc, err := nats.Connect(url, nats.Name("spawnkeeper"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

func streamLookupError(stream string, err error) error {
	if errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, stream)
	}
	return fmt.Errorf("stream info %s: %w", stream, err)
}

// Subject возвращает subject для типа события.
func Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, eventType)
}

// Publish сериализует Envelope в JSON и публикует в subject spawn.events.<type>.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return err
	}
	if _, err = jb.js.Publish(Subject(ev.EventType), data, nats.Context(ctx)); err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("jetstream publish: %w", err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт durable consumer и вызывает handler асинхронно.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subj := subjectPrefix + ".*"
	if len(f.Types) == 1 {
		subj = Subject(f.Types[0])
	}

	durable := nats.Durable(fmt.Sprintf("sub_%d", time.Now().UnixNano()))

	natSub, err := jb.js.Subscribe(subj, func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err == nil && matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}, nats.ManualAck(), durable, nats.AckWait(30*time.Second))
	if err != nil {
		return nil, err
	}

	return &jetSub{natSub}, nil
}

// jetSub обёртка вокруг *nats.Subscription чтобы удовлетворить наш интерфейс.
type jetSub struct {
	s *nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	_ = j.s.Unsubscribe()
}

// Metrics возвращает текущие метрики.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
		InFlight:  0, // очередью управляет сам JetStream
	}
}

// Close дренирует соединение с NATS.
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
