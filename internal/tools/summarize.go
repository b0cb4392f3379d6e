package tools

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSummaryLength caps summaries at 1000 characters.
const MaxSummaryLength = 1000

// sentenceEnd splits text into sentences on terminal punctuation
// followed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// Summarize produces a deterministic summary: the first two sentences
// of the input, clamped to MaxSummaryLength. No model, no randomness —
// the same input always yields the same output.
type Summarize struct{}

// NewSummarize returns the summarize tool.
func NewSummarize() *Summarize {
	return &Summarize{}
}

func (t *Summarize) Name() string { return "summarize" }

// Invoke summarizes args["text"].
func (t *Summarize) Invoke(args map[string]any) (any, error) {
	text, ok := args["text"].(string)
	if !ok {
		return nil, fmt.Errorf("summarize: 'text' argument must be a string")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "Empty text", nil
	}

	parts := sentenceEnd.Split(text, -1)
	sentences := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}

	summary := strings.Join(sentences, ". ")
	if summary != "" && !strings.HasSuffix(summary, ".") &&
		!strings.HasSuffix(summary, "!") && !strings.HasSuffix(summary, "?") {
		summary += "."
	}

	if len(summary) > MaxSummaryLength {
		// Walk back to a rune boundary so the cut never splits a
		// multi-byte character.
		cut := MaxSummaryLength - 3
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut] + "..."
	}
	return summary, nil
}
