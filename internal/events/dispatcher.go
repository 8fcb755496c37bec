package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"subledger/internal/metrics"
)

// Sink is an external destination for events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// Dispatcher stamps events, records them in the outbox and forwards them to
// sinks. Mutations are already committed when Emit runs, so sink failures
// are logged and counted, never returned.
type Dispatcher struct {
	outbox *Outbox
	clock  clockwork.Clock
	sinks  []Sink
}

func NewDispatcher(outbox *Outbox, clock clockwork.Clock, sinks ...Sink) *Dispatcher {
	return &Dispatcher{outbox: outbox, clock: clock, sinks: sinks}
}

func (d *Dispatcher) Emit(ctx context.Context, e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = d.clock.Now().UTC()
	}
	e = d.outbox.Append(e)
	metrics.EventsPublishedTotal.WithLabelValues("outbox", "ok").Inc()

	// a caller hanging up must not cancel delivery of a committed change
	ctx = context.WithoutCancel(ctx)
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(sink.Name(), "error").Inc()
			log.Error().Err(err).
				Str("sink", sink.Name()).
				Str("kind", string(e.Kind)).
				Uint64("seq", e.Seq).
				Msg("event publish failed")
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(sink.Name(), "ok").Inc()
	}
	return e
}
