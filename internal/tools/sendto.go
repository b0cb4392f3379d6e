package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SendTo simulates sending content to a URL. No real network call is
// made: each send appends a `{"url":...,"len":N}` line to a local
// egress log. The egress log is deliberately separate from the audit
// chain — it records the tool's effect, not the guard's decision.
type SendTo struct {
	egressPath string
}

// NewSendTo returns a send_to tool writing to the given egress log.
func NewSendTo(egressPath string) *SendTo {
	return &SendTo{egressPath: egressPath}
}

func (t *SendTo) Name() string { return "send_to" }

// Invoke simulates a send of args["content"] to args["url"] and records
// the destination and payload length in the egress log.
func (t *SendTo) Invoke(args map[string]any) (any, error) {
	url, ok := args["url"].(string)
	if !ok {
		return nil, fmt.Errorf("send_to: 'url' argument must be a string")
	}
	content, _ := args["content"].(string)

	if err := os.MkdirAll(filepath.Dir(t.egressPath), 0o755); err != nil {
		return nil, fmt.Errorf("send_to: creating egress log directory: %w", err)
	}

	line, err := json.Marshal(struct {
		URL string `json:"url"`
		Len int    `json:"len"`
	}{URL: url, Len: len(content)})
	if err != nil {
		return nil, fmt.Errorf("send_to: marshaling egress record: %w", err)
	}

	f, err := os.OpenFile(t.egressPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("send_to: opening egress log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("send_to: writing egress record: %w", err)
	}

	slog.Info("simulated egress", "url", url, "len", len(content))
	return fmt.Sprintf("sent %d bytes to %s", len(content), url), nil
}
