// Package policy implements the deterministic allow/block decision engine
// for guarded tool calls.
//
// The engine is a pure function over a ToolCall: no I/O at decision time,
// no mutable state, and no errors — malformed input (missing arguments,
// unparseable URLs, bad paths) is itself evidence for a BLOCK decision
// with a descriptive reason, never a panic or error return. This keeps
// Check total over its input domain so the invoker can rely on always
// getting a verdict.
//
// Rules are fixed in code, evaluated in a fixed order:
//
//  1. Allowlist gate: the tool name must be one of the recognized tools.
//  2. read_file:  the requested path, canonicalized (absolute, ".." collapsed,
//     symlinks resolved), must stay under the configured data root.
//  3. summarize:  always allowed (pure transform, no observable effect).
//  4. send_to:    destination must be http://localhost (optional port/path),
//     strict equality on scheme and host — never a suffix or substring match,
//     so hosts like "localhost.attacker.com" are rejected.
package policy

import (
	"fmt"
	"net/url"
)

// Verdict is the outcome of a policy check: ALLOW or BLOCK.
type Verdict string

const (
	Allow Verdict = "ALLOW"
	Block Verdict = "BLOCK"
)

// Recognized tool names. Anything outside this closed set is blocked
// before any tool-specific rule runs.
const (
	ToolReadFile  = "read_file"
	ToolSummarize = "summarize"
	ToolSendTo    = "send_to"
)

// ToolCall describes one invocation attempt: the tool name and its
// arguments. Treated as immutable once constructed.
type ToolCall struct {
	Tool string
	Args map[string]any
}

// Decision is the result of evaluating a ToolCall. Produced fresh per
// call and never mutated afterward.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// Config holds the externally supplied policy parameters. Passed
// explicitly into New rather than read from ambient state so multiple
// configurations can coexist (important for tests).
type Config struct {
	// DataRoot is the containment boundary for read_file. Resolved once
	// at construction; the engine never recomputes it.
	DataRoot string

	// AllowedScheme and AllowedHost gate send_to destinations.
	// Defaults: "http" and "localhost".
	AllowedScheme string
	AllowedHost   string
}

// Engine evaluates tool calls against the fixed rule set. Stateless after
// construction — safe for unlimited concurrent Check calls.
type Engine struct {
	dataRoot      string // canonical absolute form of Config.DataRoot
	allowedScheme string
	allowedHost   string
}

// New builds an Engine from the given config. The data root is
// canonicalized up front so every containment check compares against the
// same resolved boundary.
func New(cfg Config) (*Engine, error) {
	if cfg.DataRoot == "" {
		return nil, fmt.Errorf("policy: data root must not be empty")
	}
	root, err := canonicalize(cfg.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("policy: resolving data root %s: %w", cfg.DataRoot, err)
	}

	scheme := cfg.AllowedScheme
	if scheme == "" {
		scheme = "http"
	}
	host := cfg.AllowedHost
	if host == "" {
		host = "localhost"
	}

	return &Engine{
		dataRoot:      root,
		allowedScheme: scheme,
		allowedHost:   host,
	}, nil
}

// DataRoot returns the canonical containment boundary the engine was
// built with.
func (e *Engine) DataRoot() string {
	return e.dataRoot
}

// Check evaluates a tool call and returns a Decision. Pure and
// deterministic; never returns an error or panics on malformed input.
func (e *Engine) Check(call ToolCall) Decision {
	// Allowlist gate precedes all tool-specific logic.
	switch call.Tool {
	case ToolReadFile:
		return e.checkReadFile(call.Args)
	case ToolSummarize:
		return Decision{Verdict: Allow, Reason: "summarize is a pure transform"}
	case ToolSendTo:
		return e.checkSendTo(call.Args)
	default:
		return Decision{Verdict: Block, Reason: fmt.Sprintf("tool %q not in allowlist", call.Tool)}
	}
}

// checkReadFile enforces root containment on the requested path.
func (e *Engine) checkReadFile(args map[string]any) Decision {
	path, ok := stringArg(args, "path")
	if !ok {
		return Decision{Verdict: Block, Reason: "read_file: missing or non-string 'path' argument"}
	}

	resolved, err := resolveUnder(e.dataRoot, path)
	if err != nil {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("read_file: cannot resolve path %q: %v", path, err)}
	}

	if !contains(e.dataRoot, resolved) {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("read_file: path %q escapes the data root", path)}
	}

	return Decision{Verdict: Allow, Reason: fmt.Sprintf("read_file: path %q is under the data root", path)}
}

// checkSendTo enforces the fixed egress destination: exactly
// allowedScheme://allowedHost with an optional port and path.
func (e *Engine) checkSendTo(args map[string]any) Decision {
	raw, ok := stringArg(args, "url")
	if !ok {
		return Decision{Verdict: Block, Reason: "send_to: missing or non-string 'url' argument"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("send_to: invalid URL %q: %v", raw, err)}
	}

	if u.Scheme != e.allowedScheme {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("send_to: scheme %q not allowed (only %s)", u.Scheme, e.allowedScheme)}
	}

	// Strict equality on the hostname. Hostname() strips the port but
	// preserves case, so "LOCALHOST" and "localhost.attacker.com" both
	// fail this check.
	host := u.Hostname()
	if host != e.allowedHost {
		return Decision{Verdict: Block, Reason: fmt.Sprintf("send_to: host %q not allowed (only %s)", host, e.allowedHost)}
	}

	return Decision{Verdict: Allow, Reason: fmt.Sprintf("send_to: destination %s is the allowed host", raw)}
}

// stringArg extracts a string value from an arguments map.
// Returns false if the map is nil, the key is absent, or the value is
// not a string.
func stringArg(args map[string]any, key string) (string, bool) {
	if args == nil {
		return "", false
	}
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
