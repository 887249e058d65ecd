package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/spawnkeeper/internal/eventbus"
	"github.com/spf13/cobra"
)

const eventTimeFormat = "2006-01-02T15:04:05Z"

// openEventBus только читает существующий стрим; в тестах подменяется.
var openEventBus = func(url, stream string) (eventbus.EventBus, error) {
	return eventbus.OpenJetStreamBus(url, stream)
}

// TailOptions параметры команды events.
type TailOptions struct {
	URL    string
	Stream string
	Types  []string
	Limit  int
}

// NewEventsCommand создаёт команду events: вывод событий спавна из NATS JetStream.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TailOptions{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Следить за событиями SpawnChanged/SpawnReloaded в NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus, err := openEventBus(opts.URL, opts.Stream)
			if err != nil {
				if errors.Is(err, eventbus.ErrStreamNotFound) {
					return WrapExitError(ExitCommandError, "стрим событий не найден, сервер спавнов его ещё не создал", err)
				}
				return WrapExitError(ExitCommandError, "подключение к NATS", err)
			}
			defer bus.Close()

			f := &formatter{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return tailEvents(ctx, bus, f, opts)
		},
	}

	cmd.Flags().StringVar(&opts.URL, "nats", "nats://127.0.0.1:4222", "адрес NATS")
	cmd.Flags().StringVar(&opts.Stream, "stream", "SPAWNS", "имя JetStream стрима")
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "фильтр типов событий")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "завершиться после N событий (0 без ограничения)")
	return cmd
}

// tailEvents печатает события шины, пока не отменён ctx или не достигнут лимит.
func tailEvents(ctx context.Context, bus eventbus.EventBus, f *formatter, opts *TailOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		count int
	)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: opts.Types}, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if opts.Limit > 0 && count >= opts.Limit {
			return
		}
		if err := writeEnvelope(f, ev); err != nil {
			cancel()
			return
		}
		count++
		if opts.Limit > 0 && count >= opts.Limit {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

func writeEnvelope(f *formatter, ev *eventbus.Envelope) error {
	if f.json() {
		return f.encode(Response{Status: "ok", Data: ev})
	}
	return writeEnvelopeText(f.w, ev)
}

func writeEnvelopeText(w io.Writer, ev *eventbus.Envelope) error {
	_, err := fmt.Fprintf(w, "%s %-14s src=%s %s\n",
		ev.Timestamp.UTC().Truncate(time.Second).Format(eventTimeFormat), ev.EventType, ev.Source, ev.Payload)
	return err
}
