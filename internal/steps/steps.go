// Package steps executes an ordered list of typed step descriptors and stops at
// the first required step that fails.
package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arch-setup/internal/logger"
)

// Action is the work a step performs.
type Action interface {
	Run(ctx context.Context) error
	String() string
}

// Step is one entry of an ordered sequence.
type Step struct {
	Name     string
	Action   Action
	Required bool
}

// Status of a finished step.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to a step.
type Outcome struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// StepError is returned when a required step fails.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes steps sequentially.
type Runner struct {
	// Now is the clock used for timings; defaults to time.Now.
	Now func() time.Time
}

// Run executes steps in order. Every step gets an Outcome; steps never reached
// because an earlier required step failed (or ctx was cancelled) are reported as
// skipped. The returned error is a *StepError for a failed required step, or
// ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context, steps []Step) ([]Outcome, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}

	outcomes := make([]Outcome, 0, len(steps))
	total := len(steps)

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return skipRest(outcomes, steps[i:]), err
		}

		logger.Step("[%d/%d] %s\n", i+1, total, step.Name)
		logger.Debug("[DEBUG] %s\n", step.Action.String())

		start := now()
		err := step.Action.Run(ctx)
		duration := now().Sub(start)

		if err == nil {
			logger.Info("[INFO] ✓ %s (%.2fs)\n", step.Name, duration.Seconds())
			outcomes = append(outcomes, Outcome{Name: step.Name, Status: StatusOK, Duration: duration})
			continue
		}

		outcomes = append(outcomes, Outcome{Name: step.Name, Status: StatusFailed, Duration: duration, Err: err})
		if !step.Required {
			logger.Warn("[WARN] ✗ %s failed, continuing: %v\n", step.Name, err)
			continue
		}

		logger.Error("[ERROR] ✗ %s failed: %v\n", step.Name, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return skipRest(outcomes, steps[i+1:]), err
		}
		return skipRest(outcomes, steps[i+1:]), &StepError{Step: step.Name, Index: i, Err: err}
	}

	return outcomes, nil
}

func skipRest(outcomes []Outcome, rest []Step) []Outcome {
	for _, s := range rest {
		outcomes = append(outcomes, Outcome{Name: s.Name, Status: StatusSkipped})
	}
	return outcomes
}
