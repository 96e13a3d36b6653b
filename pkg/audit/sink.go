package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Fanout delivers each event to every configured sink. Deliveries run
// concurrently, so a slow sink delays neither the caller nor the other
// sinks. A sink failure is logged and swallowed so auditing never
// breaks a play.
type Fanout struct {
	sinks []Sink
	log   zerolog.Logger
	wg    sync.WaitGroup
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(log zerolog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

// Record hands the event to every sink and returns immediately.
func (f *Fanout) Record(ctx context.Context, event Event) error {
	for _, sink := range f.sinks {
		f.wg.Add(1)
		go func(s Sink) {
			defer f.wg.Done()
			if err := s.Record(ctx, event); err != nil {
				f.log.Warn().
					Err(err).
					Str("kind", string(event.Kind)).
					Str("play_id", event.PlayID).
					Msg("audit sink failed")
			}
		}(sink)
	}
	return nil
}

// Close waits for in-flight deliveries to drain.
func (f *Fanout) Close() error {
	f.wg.Wait()
	return nil
}

// LogSink writes events to the structured log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record logs the event.
func (s *LogSink) Record(_ context.Context, event Event) error {
	ev := s.log.Info().
		Str("kind", string(event.Kind)).
		Str("play_id", event.PlayID).
		Str("environment", event.Environment).
		Str("op", event.Op)
	if event.Instance != "" {
		ev = ev.Str("instance", event.Instance).
			Str("service", event.Service).
			Str("ship", event.Ship)
	}
	if event.Outcome != "" {
		ev = ev.Str("outcome", event.Outcome)
	}
	if event.Error != "" {
		ev = ev.Str("error", event.Error)
	}
	if event.Duration > 0 {
		ev = ev.Dur("duration", event.Duration)
	}
	ev.Msg("audit event")
	return nil
}
