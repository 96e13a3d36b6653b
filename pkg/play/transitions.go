package play

import (
	"context"
	"fmt"

	"github.com/flotilla-io/flotilla/pkg/entity"
	"github.com/flotilla-io/flotilla/pkg/lifecycle"
	"github.com/flotilla-io/flotilla/pkg/ship"
)

// transition applies one operation to one instance and returns the
// outcome with a short human-readable detail.
func (p *Play) transition(ctx context.Context, op Op, policy Policy, inst *entity.Instance) (Outcome, string, error) {
	conn, err := p.provider.Connect(ctx, inst.Ship)
	if err != nil {
		return OutcomeFailed, "", NewConnectivityError("cannot reach ship", err).
			WithInstance(inst.Name).WithOp(op)
	}

	switch op {
	case OpStart:
		return p.startInstance(ctx, conn, policy, inst)
	case OpStop:
		return p.stopInstance(ctx, conn, policy, inst)
	case OpRestart:
		return p.restartInstance(ctx, conn, policy, inst)
	case OpStatus:
		return p.statusInstance(ctx, conn, inst)
	case OpPull:
		return p.pullInstance(ctx, conn, inst)
	default:
		return OutcomeFailed, "", NewInternalError(fmt.Sprintf("unknown operation %q", op), nil).
			WithInstance(inst.Name)
	}
}

// startInstance brings one instance up. An already running container
// is success; otherwise the container is reused or recreated, started,
// and gated on its lifecycle checks.
func (p *Play) startInstance(ctx context.Context, conn ship.Connector, policy Policy, inst *entity.Instance) (Outcome, string, error) {
	status, err := conn.Inspect(ctx, inst.Name)
	if err != nil {
		return OutcomeFailed, "", NewDaemonError("inspect failed", err).
			WithInstance(inst.Name).WithOp(OpStart)
	}
	if status.Running {
		return OutcomeSuccess, "already running", nil
	}

	containerID := status.ID
	if status.Exists() && policy.Reuse {
		if err := conn.Start(ctx, containerID); err != nil {
			return OutcomeFailed, "", NewDaemonError("start failed", err).
				WithInstance(inst.Name).WithOp(OpStart)
		}
	} else {
		if status.Exists() {
			if err := conn.Remove(ctx, containerID); err != nil {
				return OutcomeFailed, "", NewDaemonError("remove failed", err).
					WithInstance(inst.Name).WithOp(OpStart)
			}
		}
		containerID, err = p.createAndStart(ctx, conn, inst)
		if err != nil {
			return OutcomeFailed, "", err
		}
	}

	if err := p.runChecks(ctx, inst, inst.Checks, OpStart); err != nil {
		return OutcomeFailed, "", err
	}
	detail := "started"
	if status.Exists() && policy.Reuse {
		detail = "restarted existing container"
	}
	return OutcomeSuccess, detail, nil
}

// createAndStart ensures the image is present, creates the container,
// and starts it.
func (p *Play) createAndStart(ctx context.Context, conn ship.Connector, inst *entity.Instance) (string, error) {
	ref := inst.ImageRef().String()
	imageID, err := conn.ImageID(ctx, ref)
	if err != nil {
		return "", NewDaemonError("image inspect failed", err).
			WithInstance(inst.Name).WithOp(OpStart)
	}
	if imageID == "" {
		if err := conn.PullImage(ctx, ref); err != nil {
			return "", NewDaemonError("image pull failed", err).
				WithInstance(inst.Name).WithOp(OpStart)
		}
	}

	env := inst.ResolveEnv(p.model.Name, p.model)
	containerID, err := conn.Create(ctx, inst, env)
	if err != nil {
		return "", NewDaemonError("create failed", err).
			WithInstance(inst.Name).WithOp(OpStart)
	}
	if err := conn.Start(ctx, containerID); err != nil {
		return "", NewDaemonError("start failed", err).
			WithInstance(inst.Name).WithOp(OpStart)
	}
	return containerID, nil
}

// stopInstance brings one instance down. Missing or already stopped
// containers are success. The daemon escalates to a kill after the
// grace period; that still counts as a successful stop. Stopped-state
// checks run after the stop and must pass. The stopped container and
// its volumes are removed unless Reuse asks to keep it for a later
// start.
func (p *Play) stopInstance(ctx context.Context, conn ship.Connector, policy Policy, inst *entity.Instance) (Outcome, string, error) {
	status, err := conn.Inspect(ctx, inst.Name)
	if err != nil {
		return OutcomeFailed, "", NewDaemonError("inspect failed", err).
			WithInstance(inst.Name).WithOp(OpStop)
	}
	if !status.Exists() {
		return OutcomeSuccess, "no container", nil
	}

	if status.Running {
		if err := conn.Stop(ctx, status.ID, inst.StopGrace()); err != nil {
			return OutcomeFailed, "", NewDaemonError("stop failed", err).
				WithInstance(inst.Name).WithOp(OpStop)
		}
	}
	if err := p.runChecks(ctx, inst, inst.StopChecks, OpStop); err != nil {
		return OutcomeFailed, "", err
	}

	if policy.Reuse {
		if status.Running {
			return OutcomeSuccess, "stopped", nil
		}
		return OutcomeSuccess, "already stopped", nil
	}
	if err := conn.Remove(ctx, status.ID); err != nil {
		return OutcomeFailed, "", NewDaemonError("remove failed", err).
			WithInstance(inst.Name).WithOp(OpStop)
	}
	if status.Running {
		return OutcomeSuccess, "stopped and removed", nil
	}
	return OutcomeSuccess, "removed stopped container", nil
}

// restartInstance stops and restarts one instance, recreating its
// container unless Reuse keeps the existing one. With OnlyIfChanged,
// a running container already on the current image is skipped.
func (p *Play) restartInstance(ctx context.Context, conn ship.Connector, policy Policy, inst *entity.Instance) (Outcome, string, error) {
	status, err := conn.Inspect(ctx, inst.Name)
	if err != nil {
		return OutcomeFailed, "", NewDaemonError("inspect failed", err).
			WithInstance(inst.Name).WithOp(OpRestart)
	}

	ref := inst.ImageRef().String()
	imageID, err := conn.ImageID(ctx, ref)
	if err != nil {
		return OutcomeFailed, "", NewDaemonError("image inspect failed", err).
			WithInstance(inst.Name).WithOp(OpRestart)
	}
	if imageID == "" {
		if err := conn.PullImage(ctx, ref); err != nil {
			return OutcomeFailed, "", NewDaemonError("image pull failed", err).
				WithInstance(inst.Name).WithOp(OpRestart)
		}
		imageID, err = conn.ImageID(ctx, ref)
		if err != nil {
			return OutcomeFailed, "", NewDaemonError("image inspect failed", err).
				WithInstance(inst.Name).WithOp(OpRestart)
		}
	}

	if policy.OnlyIfChanged && status.Running && status.ImageID == imageID {
		return OutcomeSkipped, "image unchanged", nil
	}

	if status.Running {
		if err := conn.Stop(ctx, status.ID, inst.StopGrace()); err != nil {
			return OutcomeFailed, "", NewDaemonError("stop failed", err).
				WithInstance(inst.Name).WithOp(OpRestart)
		}
	}
	containerID := status.ID
	if !status.Exists() || !policy.Reuse {
		if status.Exists() {
			if err := conn.Remove(ctx, status.ID); err != nil {
				return OutcomeFailed, "", NewDaemonError("remove failed", err).
					WithInstance(inst.Name).WithOp(OpRestart)
			}
		}
		env := inst.ResolveEnv(p.model.Name, p.model)
		containerID, err = conn.Create(ctx, inst, env)
		if err != nil {
			return OutcomeFailed, "", NewDaemonError("create failed", err).
				WithInstance(inst.Name).WithOp(OpRestart)
		}
	}
	if err := conn.Start(ctx, containerID); err != nil {
		return OutcomeFailed, "", NewDaemonError("start failed", err).
			WithInstance(inst.Name).WithOp(OpRestart)
	}

	if err := p.runChecks(ctx, inst, inst.Checks, OpRestart); err != nil {
		return OutcomeFailed, "", err
	}
	if status.Exists() && policy.Reuse {
		return OutcomeSuccess, "restarted existing container", nil
	}
	return OutcomeSuccess, "restarted", nil
}

// statusInstance reports one instance's observed state.
func (p *Play) statusInstance(ctx context.Context, conn ship.Connector, inst *entity.Instance) (Outcome, string, error) {
	status, err := conn.Inspect(ctx, inst.Name)
	if err != nil {
		return OutcomeFailed, "", NewDaemonError("inspect failed", err).
			WithInstance(inst.Name).WithOp(OpStatus)
	}

	switch {
	case !status.Exists():
		return OutcomeSuccess, "absent", nil
	case status.Running:
		return OutcomeSuccess, "running", nil
	default:
		return OutcomeSuccess, fmt.Sprintf("stopped (exit %d)", status.ExitCode), nil
	}
}

// pullInstance fetches the instance's image.
func (p *Play) pullInstance(ctx context.Context, conn ship.Connector, inst *entity.Instance) (Outcome, string, error) {
	ref := inst.ImageRef().String()
	if err := conn.PullImage(ctx, ref); err != nil {
		return OutcomeFailed, "", NewDaemonError("image pull failed", err).
			WithInstance(inst.Name).WithOp(OpPull)
	}
	return OutcomeSuccess, "pulled " + ref, nil
}

// runChecks gates a transition on the given lifecycle checks, in
// declared order. The first failed check fails the instance.
func (p *Play) runChecks(ctx context.Context, inst *entity.Instance, specs []lifecycle.Spec, op Op) error {
	for _, spec := range specs {
		probe, err := p.buildProbe(spec, inst)
		if err != nil {
			return NewConfigError("invalid lifecycle check", err).
				WithInstance(inst.Name).WithOp(op)
		}

		runner := lifecycle.NewRunner(spec, p.clock)
		res := runner.Run(ctx, probe)

		result := "passed"
		if !res.Passed() {
			result = "failed"
		}
		p.metrics.RecordCheck(string(spec.Kind), result, res.Attempts)

		if !res.Passed() {
			return NewReadinessError(
				fmt.Sprintf("check did not pass after %d attempts", res.Attempts), res.LastErr).
				WithInstance(inst.Name).WithOp(op)
		}
	}
	return nil
}

// buildProbe maps a check spec onto a concrete probe for this
// instance.
func (p *Play) buildProbe(spec lifecycle.Spec, inst *entity.Instance) (lifecycle.Probe, error) {
	switch spec.Kind {
	case lifecycle.KindTCP:
		port, ok := inst.Ports[spec.Port]
		if !ok {
			return nil, fmt.Errorf("tcp check references unknown port %q", spec.Port)
		}
		host := spec.Host
		if host == "" {
			host = inst.Ship.Address
		}
		return &lifecycle.TCPProbe{Host: host, Port: port.External}, nil

	case lifecycle.KindHTTP:
		return &lifecycle.HTTPProbe{URL: spec.URL}, nil

	case lifecycle.KindExec:
		return &lifecycle.ExecProbe{
			Command: spec.Command,
			Env:     inst.ResolveEnv(p.model.Name, p.model),
		}, nil

	case lifecycle.KindSleep:
		return &lifecycle.SleepProbe{Delay: spec.Delay, Clock: p.clock}, nil

	default:
		return nil, fmt.Errorf("unknown check kind %q", spec.Kind)
	}
}
