// Package tools provides the built-in tool implementations the demo
// agent plans over: a root-confined file reader, a deterministic
// summarizer, and a simulated network send.
//
// These are external collaborators from the guard's point of view —
// they expose only the name/invoke shape and perform their effects only
// after the choke point grants ALLOW. The file reader still enforces
// its own containment check: tools defend themselves even though policy
// should have refused an escaping path first.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileSize caps read_file payloads at 256 KiB.
const MaxFileSize = 256 * 1024

// ReadFile reads UTF-8 text files relative to a fixed root directory.
type ReadFile struct {
	root string
}

// NewReadFile returns a read_file tool confined to the given root.
func NewReadFile(root string) *ReadFile {
	return &ReadFile{root: root}
}

func (t *ReadFile) Name() string { return "read_file" }

// Invoke reads the file at args["path"], interpreted relative to the
// root. Escaping paths, oversized files, and non-UTF-8 content are
// errors.
func (t *ReadFile) Invoke(args map[string]any) (any, error) {
	rel, ok := args["path"].(string)
	if !ok {
		return nil, fmt.Errorf("read_file: 'path' argument must be a string")
	}

	candidate := filepath.Join(t.root, rel)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("read_file: file not found: %s", rel)
		}
		return nil, fmt.Errorf("read_file: resolving %s: %w", rel, err)
	}

	root, err := filepath.EvalSymlinks(t.root)
	if err != nil {
		return nil, fmt.Errorf("read_file: resolving root: %w", err)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("read_file: path escapes root: %s", rel)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("read_file: stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("read_file: not a regular file: %s", rel)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("read_file: file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read_file: reading %s: %w", rel, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read_file: file is not valid UTF-8 text: %s", rel)
	}

	return string(data), nil
}
