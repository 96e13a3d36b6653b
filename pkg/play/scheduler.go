package play

import (
	"context"
	"sync"
	"time"

	"github.com/flotilla-io/flotilla/pkg/audit"
	"github.com/flotilla-io/flotilla/pkg/telemetry"
)

// execution tracks the in-flight state of one play run.
type execution struct {
	play     *Play
	op       Op
	policy   Policy
	result   *Result
	selected map[string]bool

	mu sync.Mutex
}

// runWave dispatches one wave through a bounded worker pool. Instances
// whose dependencies already failed or were skipped are marked skipped
// without being dispatched.
func (e *execution) runWave(ctx context.Context, ids []string) {
	runnable := make([]string, 0, len(ids))
	for _, id := range ids {
		if blocker := e.blockedBy(id); blocker != "" {
			e.markSkipped(ctx, id, "dependency "+blocker+" did not complete")
			continue
		}
		runnable = append(runnable, id)
	}
	if len(runnable) == 0 {
		return
	}

	workerCount := e.policy.Concurrency
	if workerCount <= 0 || workerCount > len(runnable) {
		workerCount = len(runnable)
	}

	workQueue := make(chan string, len(runnable))
	for _, id := range runnable {
		workQueue <- id
	}
	close(workQueue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workQueue {
				e.executeInstance(ctx, id)
			}
		}()
	}
	wg.Wait()
}

// blockedBy returns the name of a dependency (for forward operations)
// or dependent (for reversed ones) within the play that failed or was
// skipped due to failure, or empty when the instance may run.
func (e *execution) blockedBy(id string) string {
	if !e.op.Ordered() || e.policy.IgnoreOrder {
		return ""
	}

	node, ok := e.play.graph.Node(id)
	if !ok {
		return ""
	}
	neighbors := node.Requires
	if e.op.Reversed() {
		neighbors = node.Dependents
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range neighbors {
		if !e.selected[dep] {
			continue
		}
		ir := e.result.Instances[dep]
		if ir.Outcome == OutcomeFailed || (ir.Outcome == OutcomeSkipped && ir.Err != nil) {
			return dep
		}
	}
	return ""
}

// executeInstance runs one transition and records its outcome.
func (e *execution) executeInstance(ctx context.Context, id string) {
	node, ok := e.play.graph.Node(id)
	if !ok {
		return
	}
	inst := node.Instance

	e.setOutcome(id, OutcomeRunning, "", nil)

	log := e.play.log.With().
		Str("play_id", e.result.ID).
		Str("op", string(e.op)).
		Str("instance", id).
		Str("ship", inst.Ship.Name).
		Logger()
	log.Info().Msg("transition starting")

	spanCtx, span := e.play.tracer.StartTransitionSpan(ctx, id, inst.Ship.Name, string(e.op))

	timer := telemetry.NewTimer()
	outcome, detail, err := e.play.transition(spanCtx, e.op, e.policy, inst)
	duration := timer.Duration()

	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()

	if err != nil {
		outcome = OutcomeFailed
		log.Error().Err(err).Dur("duration", duration).Msg("transition failed")
	} else {
		log.Info().Str("outcome", string(outcome)).Str("detail", detail).
			Dur("duration", duration).Msg("transition finished")
	}

	e.mu.Lock()
	ir := e.result.Instances[id]
	ir.Outcome = outcome
	ir.Detail = detail
	ir.Err = err
	ir.Duration = duration
	e.mu.Unlock()

	e.play.metrics.RecordTransition(string(e.op), string(outcome), duration)
	e.recordTransition(ctx, inst.Name, inst.Service.Name, inst.Ship.Name, outcome, err, duration)
}

// markSkipped records a skip caused by a failed dependency. The Err
// field distinguishes failure-propagation skips from benign ones, so
// the skip cascades further along the graph.
func (e *execution) markSkipped(ctx context.Context, id, reason string) {
	node, _ := e.play.graph.Node(id)
	inst := node.Instance

	err := NewConfigError(reason, nil).WithInstance(id).WithOp(e.op)

	e.mu.Lock()
	ir := e.result.Instances[id]
	ir.Outcome = OutcomeSkipped
	ir.Detail = reason
	ir.Err = err
	e.mu.Unlock()

	e.play.log.Warn().
		Str("play_id", e.result.ID).
		Str("op", string(e.op)).
		Str("instance", id).
		Str("reason", reason).
		Msg("transition skipped")

	e.play.metrics.RecordTransition(string(e.op), string(OutcomeSkipped), 0)
	e.recordTransition(ctx, inst.Name, inst.Service.Name, inst.Ship.Name, OutcomeSkipped, err, 0)
}

// setOutcome updates one instance's outcome under the lock.
func (e *execution) setOutcome(id string, outcome Outcome, detail string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ir := e.result.Instances[id]
	ir.Outcome = outcome
	ir.Detail = detail
	ir.Err = err
}

func (e *execution) recordTransition(ctx context.Context, instance, service, shipName string, outcome Outcome, err error, duration time.Duration) {
	event := audit.Event{
		Kind:        audit.KindTransition,
		Time:        time.Now(),
		PlayID:      e.result.ID,
		Environment: e.result.Environment,
		Op:          string(e.op),
		Instance:    instance,
		Service:     service,
		Ship:        shipName,
		Outcome:     string(outcome),
		Duration:    duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.play.record(ctx, event)
}
