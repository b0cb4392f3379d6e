package planner

import (
	"fmt"
	"log/slog"

	"github.com/toolgate/toolgate/internal/guard"
)

// Outcome classifies how a step ended.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeBlocked Outcome = "blocked"
	OutcomeError   Outcome = "error"
)

// StepResult records one executed step of a run.
type StepResult struct {
	Step    Step    `json:"step"`
	Outcome Outcome `json:"outcome"`
	Result  string  `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Transcript is the full record of a run: every step with its outcome,
// plus the agent's final output.
type Transcript struct {
	Steps  []StepResult `json:"steps"`
	Output string       `json:"output"`
}

// ToolInvoker is the execution surface the runner drives. In guarded
// mode this is the choke point (*guard.Invoker); the baseline demo mode
// substitutes a direct, unguarded dispatcher to show what the guard
// prevents.
type ToolInvoker interface {
	Invoke(tool string, args map[string]any) (any, error)
}

// Runner executes planned steps through a ToolInvoker. A policy refusal
// is a failed step, not a run-fatal error: the runner records it and
// moves on, exactly as an agent loop would feed the refusal back to its
// planner.
type Runner struct {
	invoker ToolInvoker
}

// NewRunner returns a runner that invokes through the given surface.
func NewRunner(inv ToolInvoker) *Runner {
	return &Runner{invoker: inv}
}

// Run plans from the prompt and executes every step in order.
func (r *Runner) Run(prompt string) Transcript {
	var t Transcript
	lastResult := ""

	for _, step := range Plan(prompt) {
		args := substitute(step.Args, lastResult)

		result, err := r.invoker.Invoke(step.Tool, args)
		sr := StepResult{Step: Step{Tool: step.Tool, Args: args}}

		switch {
		case err == nil:
			sr.Outcome = OutcomeOK
			if s, ok := result.(string); ok && s != "" {
				sr.Result = s
				lastResult = s
			}
		case guard.IsBlocked(err):
			sr.Outcome = OutcomeBlocked
			sr.Error = err.Error()
			slog.Info("step blocked", "tool", step.Tool, "error", err)
		default:
			sr.Outcome = OutcomeError
			sr.Error = err.Error()
			slog.Error("step failed", "tool", step.Tool, "error", err)
		}

		t.Steps = append(t.Steps, sr)
	}

	if lastResult == "" {
		t.Output = "Done. No result."
	} else {
		t.Output = fmt.Sprintf("Done. Summary: %s", lastResult)
	}
	return t
}
