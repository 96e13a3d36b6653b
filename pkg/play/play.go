// Package play executes fleet operations against an environment. A
// play is ephemeral: it selects a set of instances, orders them along
// the dependency graph, dispatches transitions through a bounded
// worker pool, and reports per-instance outcomes. Plays never persist
// state between invocations; the ships' daemons are the source of
// truth.
package play

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flotilla-io/flotilla/pkg/audit"
	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/graph"
	"github.com/flotilla-io/flotilla/pkg/lifecycle"
	"github.com/flotilla-io/flotilla/pkg/ship"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
)

// Op is a fleet operation.
type Op string

const (
	// OpStart brings instances up, dependencies first.
	OpStart Op = "start"

	// OpStop brings instances down, dependents first.
	OpStop Op = "stop"

	// OpRestart recreates instances, dependencies first.
	OpRestart Op = "restart"

	// OpStatus reports instance states without ordering.
	OpStatus Op = "status"

	// OpPull fetches images without ordering.
	OpPull Op = "pull"
)

// Ordered reports whether the operation honors dependency order.
func (op Op) Ordered() bool {
	switch op {
	case OpStart, OpStop, OpRestart:
		return true
	default:
		return false
	}
}

// Reversed reports whether the operation runs deepest wave first.
func (op Op) Reversed() bool {
	return op == OpStop
}

// Outcome is the final state of one instance within a play.
type Outcome string

const (
	// OutcomePending means the instance has not been dispatched yet.
	OutcomePending Outcome = "pending"

	// OutcomeRunning means the transition is in flight.
	OutcomeRunning Outcome = "running"

	// OutcomeSuccess means the transition completed.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailed means the transition errored.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means the instance was never attempted because a
	// dependency failed, or the transition decided nothing was needed.
	OutcomeSkipped Outcome = "skipped"
)

// Policy carries the per-invocation knobs of a play.
type Policy struct {
	// Targets narrows the play to named services or instances. Empty
	// selects every non-omitted instance.
	Targets []string

	// WithDependencies expands the selection along hard edges.
	WithDependencies bool

	// IgnoreOrder dispatches everything in one wave.
	IgnoreOrder bool

	// Concurrency bounds simultaneous transitions. Zero or negative
	// means unbounded within a wave.
	Concurrency int

	// Reuse restarts an existing stopped container instead of
	// recreating it.
	Reuse bool

	// OnlyIfChanged skips a restart when the instance already runs the
	// current image.
	OnlyIfChanged bool
}

// InstanceResult is one instance's outcome within a play.
type InstanceResult struct {
	Instance string
	Service  string
	Ship     string
	Outcome  Outcome
	Detail   string
	Err      error
	Duration time.Duration
}

// Summary aggregates a play's outcomes.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
}

// Result is the full record of one play.
type Result struct {
	ID          string
	Op          Op
	Environment string
	StartedAt   time.Time
	Duration    time.Duration
	Instances   map[string]*InstanceResult
	Summary     Summary
}

// Failed reports whether any instance failed.
func (r *Result) Failed() bool {
	return r.Summary.Failed > 0
}

// Play executes operations against one environment.
type Play struct {
	model    *entity.Model
	graph    *graph.Graph
	provider ship.Provider
	sink     audit.Sink
	log      zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	clock    lifecycle.Clock
}

// Options configures a Play.
type Options struct {
	// Provider resolves ships to daemon connectors. Required.
	Provider ship.Provider

	// Sink receives audit events. Nil disables auditing.
	Sink audit.Sink

	// Logger is the structured logger. A zero logger is usable.
	Logger zerolog.Logger

	// Metrics records play metrics. Nil disables metrics.
	Metrics *telemetry.Metrics

	// Tracer emits play and transition spans. Nil disables tracing.
	Tracer *telemetry.Tracer

	// Clock drives lifecycle check timing. Nil means the real clock.
	Clock lifecycle.Clock
}

// New validates the model, builds its dependency graph, and returns a
// Play ready to run operations.
func New(m *entity.Model, opts Options) (*Play, error) {
	if opts.Provider == nil {
		return nil, NewConfigError("a ship provider is required", nil)
	}
	if err := m.Validate(); err != nil {
		return nil, NewConfigError("invalid environment", err)
	}

	g, err := graph.Build(m)
	if err != nil {
		return nil, NewConfigError("invalid dependency graph", err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{}, "flotilla", "", "")
	}
	clock := opts.Clock
	if clock == nil {
		clock = lifecycle.RealClock{}
	}
	var sink audit.Sink = opts.Sink
	if sink == nil {
		sink = nopSink{}
	}

	return &Play{
		model:    m,
		graph:    g,
		provider: opts.Provider,
		sink:     sink,
		log:      opts.Logger,
		metrics:  metrics,
		tracer:   tracer,
		clock:    clock,
	}, nil
}

// Graph exposes the dependency graph for inspection commands.
func (p *Play) Graph() *graph.Graph {
	return p.graph
}

// Run executes one operation under the given policy. The returned
// result is complete even when instances failed; the error is non-nil
// only for errors that prevented the play from running at all.
func (p *Play) Run(ctx context.Context, op Op, policy Policy) (*Result, error) {
	selected, err := p.graph.Select(policy.Targets)
	if err != nil {
		return nil, NewConfigError("invalid selection", err).WithOp(op)
	}
	if policy.WithDependencies && op.Ordered() {
		selected = p.graph.Closure(selected)
	}

	var waves [][]string
	if !op.Ordered() || policy.IgnoreOrder {
		waves = graph.Flatten(selected)
	} else {
		waves = p.graph.SelectedLevels(selected)
		if op.Reversed() {
			reverse(waves)
		}
	}

	result := &Result{
		ID:          uuid.New().String(),
		Op:          op,
		Environment: p.model.Name,
		StartedAt:   time.Now(),
		Instances:   make(map[string]*InstanceResult, len(selected)),
	}
	for id := range selected {
		node, _ := p.graph.Node(id)
		result.Instances[id] = &InstanceResult{
			Instance: id,
			Service:  node.Instance.Service.Name,
			Ship:     node.Instance.Ship.Name,
			Outcome:  OutcomePending,
		}
	}
	result.Summary.Total = len(result.Instances)

	ctx, span := p.tracer.StartPlaySpan(ctx, result.ID, string(op))
	defer span.End()

	p.metrics.RecordPlayStarted(string(op))
	p.record(ctx, audit.Event{
		Kind:        audit.KindPlayStarted,
		Time:        result.StartedAt,
		PlayID:      result.ID,
		Environment: result.Environment,
		Op:          string(op),
	})

	exec := &execution{
		play:     p,
		op:       op,
		policy:   policy,
		result:   result,
		selected: selected,
	}
	for _, wave := range waves {
		exec.runWave(ctx, wave)
	}

	result.Duration = time.Since(result.StartedAt)
	for _, ir := range result.Instances {
		switch ir.Outcome {
		case OutcomeSuccess:
			result.Summary.Succeeded++
		case OutcomeFailed:
			result.Summary.Failed++
		case OutcomeSkipped:
			result.Summary.Skipped++
		}
	}

	status := string(OutcomeSuccess)
	if result.Failed() {
		status = string(OutcomeFailed)
		telemetry.RecordError(span, fmt.Errorf("%d of %d instances failed",
			result.Summary.Failed, result.Summary.Total))
	} else {
		telemetry.RecordSuccess(span)
	}
	p.metrics.RecordPlayCompleted(string(op), status, result.Duration)
	p.record(ctx, audit.Event{
		Kind:        audit.KindPlayFinished,
		Time:        time.Now(),
		PlayID:      result.ID,
		Environment: result.Environment,
		Op:          string(op),
		Outcome:     status,
		Duration:    result.Duration,
	})

	return result, nil
}

// record delivers an audit event, ignoring sink errors.
func (p *Play) record(ctx context.Context, event audit.Event) {
	_ = p.sink.Record(ctx, event)
}

// nopSink discards audit events.
type nopSink struct{}

func (nopSink) Record(context.Context, audit.Event) error { return nil }

func reverse(waves [][]string) {
	for i, j := 0, len(waves)-1; i < j; i, j = i+1, j-1 {
		waves[i], waves[j] = waves[j], waves[i]
	}
}
