package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// LogFileName is the JSONL file inside the audit directory that holds
// the chained entries. One compact JSON object per line, append-only.
const LogFileName = "audit.jsonl"

// QueryParams defines filters for querying the audit log.
// All fields are optional — empty/zero values mean "no filter".
type QueryParams struct {
	Decision string // Filter by decision: "ALLOW" or "BLOCK".
	Tool     string // Glob pattern on the tool name (e.g. "read_*").
	Since    string // ISO timestamp or duration string (e.g. "1h", "24h").
	Limit    int    // Maximum entries to return.
}

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entries_checked"`
	BrokenAt       int    `json:"broken_at,omitempty"`
	ExpectedHash   string `json:"expected_hash,omitempty"`
	ActualHash     string `json:"actual_hash,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Log manages the hash-chained, append-only audit log.
//
// Storage layout:
//
//	<dir>/
//	├── audit.jsonl   # Chained entries (append-only, source of truth)
//	└── index.db      # SQLite index for fast queries (rebuildable)
//
// Thread-safe — the append path is the single shared mutable resource
// when invocations run concurrently, so exactly one writer at a time
// reads the last hash, computes the next entry, and writes it.
type Log struct {
	mu        sync.Mutex
	dir       string
	path      string       // Path to audit.jsonl.
	file      *os.File     // Open in append-only mode.
	nextIndex uint64       // Index assigned to the next entry.
	lastHash  string       // Hash of the last entry (chain continuity).
	index     *sqliteIndex // SQLite index for fast queries.
	notify    func(Entry)  // Optional observer, fired after each append.
}

// Open opens or creates an audit log in the given directory. Existing
// entries are scanned so the chain continues correctly after a restart.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit file %s: %w", path, err)
	}

	l := &Log{
		dir:      dir,
		path:     path,
		file:     f,
		lastHash: GenesisHash,
	}

	idx, err := openIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening audit index: %w", err)
	}
	l.index = idx

	if err := l.recoverState(); err != nil {
		f.Close()
		idx.close()
		return nil, err
	}

	slog.Info("audit log opened", "dir", dir, "next_index", l.nextIndex)
	return l, nil
}

// Close flushes and closes the audit log and SQLite index.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.index != nil {
		if err := l.index.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing audit log: %v", errs)
	}
	return nil
}

// Path returns the location of the JSONL file.
func (l *Log) Path() string {
	return l.path
}

// OnAppend registers an observer called with every entry after it has
// been durably written. Used by the dashboard's live feed. Must be set
// before concurrent appends begin.
func (l *Log) OnAppend(fn func(Entry)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = fn
}

// Append records one invocation attempt. It assigns the next index,
// links the entry to the previous hash, writes it as one line, and
// fsyncs before returning. An error here means the attempt has NOT been
// durably recorded — callers must treat that as a blocked invocation.
func (l *Log) Append(tool string, args map[string]any, decision, reason string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Hash the args in their JSON-decoded form, which is what a verifier
	// reconstructs from the JSONL line.
	normalized, err := normalizeArgs(args)
	if err != nil {
		return Entry{}, fmt.Errorf("normalizing args for entry %d: %w", l.nextIndex, err)
	}

	e := Entry{
		Index:     l.nextIndex,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Tool:      tool,
		Args:      normalized,
		Decision:  decision,
		Reason:    reason,
		PrevHash:  l.lastHash,
	}

	hash, err := computeHash(&e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = hash

	data, err := json.Marshal(&e)
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling audit entry: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return Entry{}, fmt.Errorf("writing audit entry %d: %w", e.Index, err)
	}
	// Flush immediately — audit entries must survive crashes.
	if err := l.file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("syncing audit entry %d: %w", e.Index, err)
	}

	// The index is a best-effort projection; failures are logged inside
	// insert and never fail the append.
	if l.index != nil {
		l.index.insert(&e)
	}

	l.lastHash = e.Hash
	l.nextIndex++

	if l.notify != nil {
		l.notify(e)
	}
	return e, nil
}

// VerifyChain re-reads the JSONL file from disk and verifies the full
// chain. Reading from disk (rather than trusting in-memory state) is
// the point: it catches out-of-band tampering.
func (l *Log) VerifyChain() (VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return VerifyFile(l.path)
}

// VerifyFile walks an audit file in order and checks every entry:
// parseable line, contiguous index, prev-hash linkage, and recomputed
// hash. The first inconsistency stops the walk. An empty or missing
// file is trivially valid.
func VerifyFile(path string) (VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{Valid: true}, nil
		}
		return VerifyResult{}, fmt.Errorf("opening audit file %s: %w", path, err)
	}
	defer f.Close()

	prevHash := GenesisHash
	checked := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return VerifyResult{
				Valid:          false,
				EntriesChecked: checked + 1,
				BrokenAt:       checked,
				Detail:         fmt.Sprintf("unparseable entry: %v", err),
			}, nil
		}

		if e.Index != uint64(checked) {
			return VerifyResult{
				Valid:          false,
				EntriesChecked: checked + 1,
				BrokenAt:       checked,
				Detail:         fmt.Sprintf("index gap: expected %d, got %d", checked, e.Index),
			}, nil
		}

		if e.PrevHash != prevHash {
			return VerifyResult{
				Valid:          false,
				EntriesChecked: checked + 1,
				BrokenAt:       checked,
				ExpectedHash:   prevHash,
				ActualHash:     e.PrevHash,
				Detail:         "prev_hash does not link to the previous entry",
			}, nil
		}

		expected, err := computeHash(&e)
		if err != nil || e.Hash != expected {
			return VerifyResult{
				Valid:          false,
				EntriesChecked: checked + 1,
				BrokenAt:       checked,
				ExpectedHash:   expected,
				ActualHash:     e.Hash,
				Detail:         "stored hash does not match recomputed hash",
			}, nil
		}

		prevHash = e.Hash
		checked++
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("reading audit file %s: %w", path, err)
	}

	return VerifyResult{Valid: true, EntriesChecked: checked}, nil
}

// Tail returns the N most recent audit entries.
func (l *Log) Tail(limit int) ([]Entry, error) {
	return l.Query(QueryParams{Limit: limit})
}

// Query retrieves entries matching the given filter parameters. The
// SQLite index serves decision/since/limit; the tool glob is applied in
// memory on the result.
func (l *Log) Query(params QueryParams) ([]Entry, error) {
	// Convert a "since" duration string (e.g. "1h", "24h") to a timestamp.
	if params.Since != "" && !strings.Contains(params.Since, "T") {
		d, err := time.ParseDuration(params.Since)
		if err != nil {
			return nil, fmt.Errorf("invalid since duration %q: %w", params.Since, err)
		}
		params.Since = time.Now().UTC().Add(-d).Format(time.RFC3339Nano)
	}

	var toolGlob glob.Glob
	if params.Tool != "" {
		g, err := glob.Compile(params.Tool)
		if err != nil {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", params.Tool, err)
		}
		toolGlob = g
	}

	entries, err := l.index.query(params)
	if err != nil {
		return nil, err
	}

	if toolGlob == nil {
		return entries, nil
	}
	filtered := entries[:0]
	for _, e := range entries {
		if toolGlob.Match(e.Tool) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Export writes all audit entries to the given writer in the specified
// format. Supported formats: "jsonl" (default), "json", "csv".
func (l *Log) Export(w io.Writer, format string) error {
	entries, err := readEntriesFromFile(l.path)
	if err != nil {
		return fmt.Errorf("reading entries for export: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "csv":
		cw := csv.NewWriter(w)
		defer cw.Flush()
		if err := cw.Write([]string{"index", "ts", "tool", "decision", "reason", "prev_hash", "hash"}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write([]string{
				fmt.Sprintf("%d", e.Index),
				e.Timestamp,
				e.Tool,
				e.Decision,
				e.Reason,
				e.PrevHash,
				e.Hash,
			}); err != nil {
				return err
			}
		}
		return nil

	case "jsonl", "":
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported export format: %s (use json, jsonl, or csv)", format)
	}
}

// recoverState reads the last line of the JSONL file to continue the
// chain after a restart, and re-inserts any entries missing from the
// SQLite index (e.g. after a crash between write and index).
func (l *Log) recoverState() error {
	last, err := readLastEntry(l.path)
	if err != nil {
		return fmt.Errorf("recovering audit state from %s: %w", l.path, err)
	}
	if last == nil {
		return nil
	}

	l.nextIndex = last.Index + 1
	l.lastHash = last.Hash

	if l.index != nil {
		l.reindex()
	}
	return nil
}

// reindex scans the JSONL file and inserts any entries newer than the
// index's high-water mark.
func (l *Log) reindex() {
	have, ok := l.index.lastIndex()
	entries, err := readEntriesFromFile(l.path)
	if err != nil {
		slog.Error("reindex: error reading audit file", "path", l.path, "error", err)
		return
	}
	for i := range entries {
		if !ok || entries[i].Index > have {
			l.index.insert(&entries[i])
		}
	}
}

// readLastEntry reads the last non-empty line of a JSONL file and
// parses it as an Entry. Returns nil if the file is empty or missing.
func readLastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if lastLine == "" {
		return nil, nil
	}

	var e Entry
	if err := json.Unmarshal([]byte(lastLine), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// readEntriesFromFile reads all entries from a JSONL file, skipping
// malformed lines (verification, which must not skip them, parses the
// file itself).
func readEntriesFromFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			slog.Warn("skipping malformed audit entry", "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
