// Package supervisor bounds each grader run by a wall-clock budget.
package supervisor

import (
	"context"
	"time"

	"autograde/internal/grading/model"
	"autograde/internal/grading/sandbox/engine"
	appErr "autograde/pkg/errors"
	"autograde/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultGrace = 2 * time.Second

// StartFunc is called once the grader process is running.
type StartFunc func(pid int)

// Supervisor runs one grader invocation at a time under a time budget.
type Supervisor struct {
	engine engine.Engine
	grace  time.Duration
}

// New creates a supervisor. grace bounds each termination phase.
func New(eng engine.Engine, grace time.Duration) (*Supervisor, error) {
	if eng == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("engine is required")
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Supervisor{engine: eng, grace: grace}, nil
}

// Grace returns the termination grace period.
func (s *Supervisor) Grace() time.Duration {
	return s.grace
}

// Run grades one item. A zero budget disables enforcement. Per-item faults
// are returned as outcomes; the error is non-nil only when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, item model.WorkItem, budget time.Duration, onStart StartFunc) (model.Outcome, error) {
	ctx = logger.WithStudent(ctx, item.Student)
	h, err := s.engine.Spawn(ctx, item)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Outcome{}, ctxErr
		}
		logger.Warn(ctx, "grader crashed", zap.String("reason", "spawn failed"), zap.Error(err))
		return model.Crashed(err.Error(), 0), nil
	}
	ctx = logger.WithWorkerPID(ctx, h.PID())
	if onStart != nil {
		onStart(h.PID())
	}

	if res := h.Await(ctx, budget); res == engine.Exited {
		out := h.Outcome()
		if out.Kind == model.OutcomeCrashed {
			logger.Warn(ctx, "grader crashed",
				zap.String("reason", out.Detail),
				zap.String("stderr", h.Stderr()),
				zap.Duration("elapsed", out.Duration))
		}
		return out, nil
	}

	reaped := h.Terminate(s.grace)
	// The budget elapsed first: whatever the slot holds now is discarded.
	entry := h.Slot().Seal()
	elapsed := h.Elapsed()
	if !reaped {
		logger.Error(ctx, "grader did not exit after kill", zap.Duration("grace", s.grace))
	}

	if err := ctx.Err(); err != nil {
		logger.Warn(ctx, "grading cancelled", zap.Error(err))
		return model.Outcome{}, err
	}

	if entry.Done {
		logger.Debug(ctx, "grade arrived after budget, discarded", zap.Float64("grade", entry.Grade))
	}
	logger.Warn(ctx, "grader timed out",
		zap.Duration("budget", budget),
		zap.Duration("elapsed", elapsed),
		zap.Bool("killed", h.Killed()))
	return model.TimedOut(budget, elapsed), nil
}
