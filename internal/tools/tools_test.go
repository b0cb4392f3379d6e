package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestReadFile_ReadsUnderRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "secret.txt"), []byte("SECRET_TOKEN=DEADBEEF"), 0o644); err != nil {
		t.Fatal(err)
	}

	rf := NewReadFile(root)
	result, err := rf.Invoke(map[string]any{"path": "secret.txt"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result != "SECRET_TOKEN=DEADBEEF" {
		t.Errorf("unexpected content: %v", result)
	}
}

func TestReadFile_EscapeRejected(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "data")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "outside.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rf := NewReadFile(root)
	if _, err := rf.Invoke(map[string]any{"path": "../outside.txt"}); err == nil {
		t.Error("escaping path should be rejected by the tool itself")
	}
}

func TestReadFile_NotFound(t *testing.T) {
	rf := NewReadFile(t.TempDir())
	_, err := rf.Invoke(map[string]any{"path": "missing.txt"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected a not-found error, got %v", err)
	}
}

func TestReadFile_BadArgs(t *testing.T) {
	rf := NewReadFile(t.TempDir())
	if _, err := rf.Invoke(map[string]any{"path": 42}); err == nil {
		t.Error("non-string path should error")
	}
	if _, err := rf.Invoke(nil); err == nil {
		t.Error("nil args should error")
	}
}

func TestSummarize_FirstTwoSentences(t *testing.T) {
	s := NewSummarize()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"two_of_three", "One fish. Two fish. Red fish.", "One fish. Two fish."},
		{"single", "Just one sentence", "Just one sentence."},
		{"empty", "", "Empty text"},
		{"whitespace", "   \n  ", "Empty text"},
		{"exclamation", "Wow! Amazing! More.", "Wow. Amazing."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Invoke(map[string]any{"text": tt.text})
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("summarize(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSummarize_Deterministic(t *testing.T) {
	s := NewSummarize()
	args := map[string]any{"text": "Alpha beta. Gamma delta. Epsilon."}
	first, _ := s.Invoke(args)
	for i := 0; i < 5; i++ {
		if got, _ := s.Invoke(args); got != first {
			t.Fatalf("summarize is not deterministic: %v vs %v", first, got)
		}
	}
}

func TestSummarize_ClampsLength(t *testing.T) {
	s := NewSummarize()
	long := strings.Repeat("a", 2*MaxSummaryLength)
	got, err := s.Invoke(map[string]any{"text": long})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.(string)) > MaxSummaryLength {
		t.Errorf("summary length %d exceeds cap %d", len(got.(string)), MaxSummaryLength)
	}
}

func TestSummarize_ClampPreservesUTF8(t *testing.T) {
	s := NewSummarize()
	long := strings.Repeat("日本語テキスト", MaxSummaryLength)
	got, err := s.Invoke(map[string]any{"text": long})
	if err != nil {
		t.Fatal(err)
	}
	summary := got.(string)
	if len(summary) > MaxSummaryLength {
		t.Errorf("summary length %d exceeds cap %d", len(summary), MaxSummaryLength)
	}
	if !utf8.ValidString(summary) {
		t.Error("truncation split a multi-byte rune")
	}
}

func TestSendTo_WritesEgressRecord(t *testing.T) {
	egress := filepath.Join(t.TempDir(), "egress.log")
	st := NewSendTo(egress)

	if _, err := st.Invoke(map[string]any{"url": "http://localhost:8080/x", "content": "hello"}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if _, err := st.Invoke(map[string]any{"url": "http://localhost:8080/y", "content": "hi"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(egress)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 egress records, got %d", len(lines))
	}

	var rec struct {
		URL string `json:"url"`
		Len int    `json:"len"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("egress record is not valid JSON: %v", err)
	}
	if rec.URL != "http://localhost:8080/x" || rec.Len != len("hello") {
		t.Errorf("unexpected egress record: %+v", rec)
	}
}
