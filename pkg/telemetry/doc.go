// Package telemetry provides the observability instrumentation for
// flotilla: structured logging with zerolog, distributed tracing with
// OpenTelemetry, and Prometheus metrics.
//
// Initialize telemetry at startup and carry it through the context:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// Component loggers keep log output attributable:
//
//	logger := tel.Logger.NewComponentLogger("play")
//	logger.WithPlayID(id).WithInstance("web-1").Info("transition applied")
//
// Key metrics exposed on the /metrics endpoint:
//
//   - flotilla_plays_started_total{op}
//   - flotilla_plays_completed_total{op,status}
//   - flotilla_play_duration_seconds{op}
//   - flotilla_transitions_total{op,outcome}
//   - flotilla_transition_duration_seconds{op}
//   - flotilla_checks_total{kind,result}
//   - flotilla_daemon_calls_total{ship,operation}
//   - flotilla_daemon_errors_total{ship,operation}
//   - flotilla_active_plays
package telemetry
