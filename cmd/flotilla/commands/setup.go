package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/flotilla-io/flotilla/pkg/audit"
	"github.com/flotilla-io/flotilla/pkg/config"
	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/ship"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
)

// app bundles everything a command needs: the resolved environment,
// telemetry, audit sinks, and the ship provider.
type app struct {
	file     *config.File
	model    *entity.Model
	tel      *telemetry.Telemetry
	sink     audit.Sink
	provider *ship.DockerProvider

	closers []func() error
}

// setup loads the environment description and wires the runtime
// around it. Callers must Close the returned app.
func setup(ctx context.Context) (*app, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsAddr
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := tel.StartMetricsServer(); err != nil {
			return nil, err
		}
	}

	f, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	model, err := f.Resolve()
	if err != nil {
		return nil, err
	}

	resolver, err := ship.NewResolver(shipProvider, model)
	if err != nil {
		return nil, err
	}
	ships, err := resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	tel.Logger.
		WithField("environment", model.Name).
		WithField("ships", len(ships)).
		Debug("environment resolved")

	a := &app{
		file:  f,
		model: model,
		tel:   tel,
	}

	if a.sink, err = a.buildSinks(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.provider = ship.NewDockerProvider(tel.Logger.Zerolog()).
		WithRegistryAuth(model.RegistryFor).
		WithTelemetry(tel.Metrics, tel.Tracer)
	a.closers = append(a.closers, a.provider.Close)

	return a, nil
}

// buildSinks assembles the audit fan-out from the description's audit
// section. No section means no auditing.
func (a *app) buildSinks(ctx context.Context) (audit.Sink, error) {
	if len(a.file.Audit) == 0 {
		return nil, nil
	}

	zl := a.tel.Logger.Zerolog()
	sinks := make([]audit.Sink, 0, len(a.file.Audit))
	for _, cfg := range a.file.Audit {
		switch cfg.Type {
		case "log":
			sinks = append(sinks, audit.NewLogSink(zl))
		case "webhook":
			sinks = append(sinks, audit.NewWebhookSink(
				cfg.URL, time.Duration(cfg.Timeout)*time.Second, cfg.Headers))
		case "history":
			hist, err := audit.NewHistorySink(cfg.Path)
			if err != nil {
				return nil, err
			}
			if err := hist.Init(ctx); err != nil {
				return nil, err
			}
			a.closers = append(a.closers, hist.Close)
			sinks = append(sinks, hist)
		default:
			return nil, fmt.Errorf("unknown audit sink type %q", cfg.Type)
		}
	}
	fan := audit.NewFanout(zl, sinks...)
	a.closers = append(a.closers, fan.Close)
	return fan, nil
}

// Close releases the app's resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.tel.Logger.WithError(err).Warn("cleanup failed")
		}
	}
	a.tel.Shutdown(context.Background())
}
