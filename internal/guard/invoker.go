package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/toolgate/toolgate/internal/audit"
	"github.com/toolgate/toolgate/internal/policy"
)

// BlockedError is returned when a tool call is refused by policy.
// It is an expected, recoverable-by-caller signal: the calling agent
// should treat it as a failed step, not a fatal error.
type BlockedError struct {
	Tool   string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("policy blocked %s: %s", e.Tool, e.Reason)
}

// IsBlocked reports whether err is (or wraps) a policy refusal.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// AuditError is returned when the audit append fails. The invocation is
// treated as blocked (the tool never ran), but unlike a policy refusal
// this is an infrastructure failure the caller cannot retry around.
type AuditError struct {
	Tool string
	Err  error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("audit append failed for %s, invocation denied: %v", e.Tool, e.Err)
}

func (e *AuditError) Unwrap() error { return e.Err }

// Invoker is the single choke point for tool execution. It holds
// references to the policy engine, the audit log, and the tool
// registry; every call site goes through Invoke.
//
// The invoker itself has no per-call state, so invocations of different
// tools may run concurrently — they serialize only on the audit log's
// append path.
type Invoker struct {
	policy   *policy.Engine
	audit    *audit.Log
	registry *Registry

	mu         sync.RWMutex
	halted     bool
	haltReason string
}

// NewInvoker wires a policy engine, audit log, and tool registry into a
// choke point.
func NewInvoker(p *policy.Engine, a *audit.Log, r *Registry) *Invoker {
	return &Invoker{policy: p, audit: a, registry: r}
}

// Halt forces every subsequent invocation to a BLOCK verdict until
// Resume is called. Halted attempts are still audited — the kill switch
// leaves the same tamper-evident trail as any other refusal.
func (inv *Invoker) Halt(reason string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.halted = true
	inv.haltReason = reason
	slog.Warn("invoker halted", "reason", reason)
}

// Resume lifts a Halt.
func (inv *Invoker) Resume() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.halted = false
	inv.haltReason = ""
	slog.Info("invoker resumed")
}

// Invoke runs one guarded tool call. The sequence is fixed:
//
//  1. Build the ToolCall.
//  2. Check policy (never errors — refusal is a decision, not an exception).
//  3. Append the audit entry BEFORE any tool code runs.
//  4. On append failure: return AuditError; the tool never runs.
//  5. On BLOCK: return BlockedError; the tool never runs.
//  6. On ALLOW: invoke the registered implementation and return its
//     result or its own error unchanged.
func (inv *Invoker) Invoke(tool string, args map[string]any) (any, error) {
	call := policy.ToolCall{Tool: tool, Args: args}

	decision := inv.policy.Check(call)

	inv.mu.RLock()
	if inv.halted {
		decision = policy.Decision{
			Verdict: policy.Block,
			Reason:  fmt.Sprintf("invoker halted: %s", inv.haltReason),
		}
	}
	inv.mu.RUnlock()

	entry, err := inv.audit.Append(tool, args, string(decision.Verdict), decision.Reason)
	if err != nil {
		// Fail closed: no durable record means no side effect.
		slog.Error("audit append failed, denying invocation", "tool", tool, "error", err)
		return nil, &AuditError{Tool: tool, Err: err}
	}

	if decision.Verdict == policy.Block {
		slog.Info("tool call blocked", "tool", tool, "index", entry.Index, "reason", decision.Reason)
		return nil, &BlockedError{Tool: tool, Reason: decision.Reason}
	}

	impl, err := inv.registry.Lookup(tool)
	if err != nil {
		// Allowed by policy but nothing registered under the name. Not a
		// policy refusal; surface as a plain invocation error.
		return nil, err
	}

	slog.Debug("tool call allowed", "tool", tool, "index", entry.Index)
	return impl.Invoke(args)
}
