// Package audit implements the append-only, hash-chained audit log.
//
// Every invocation attempt — allowed or blocked — is recorded as one
// Entry on one JSONL line. Each entry's hash is computed over the
// previous entry's hash concatenated with the entry's canonical
// serialization, forming a chain where modifying, reordering, deleting,
// or inserting any entry breaks verification from that point on.
// Blocked attempts chain exactly like allowed ones: the tamper-evidence
// guarantee is only meaningful if refusals are equally protected from
// deletion.
//
// The JSONL file is the source of truth. A SQLite index alongside it is
// a rebuildable projection used for filtered queries and tailing.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GenesisHash is the prev_hash of the first entry in any log: 64 zero
// hex characters. A fixed constant so independently created logs share
// the same chain anchor.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is a single audit record. Once written it is immutable; the
// only consumers afterward are the chain validator and the query surface.
type Entry struct {
	Index     uint64         `json:"index"`
	Timestamp string         `json:"ts"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Decision  string         `json:"decision"`
	Reason    string         `json:"reason"`
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
}

// canonical returns the deterministic serialization of an entry minus
// its hash field: compact JSON with a fixed field order. encoding/json
// emits struct fields in declaration order and sorts map keys, so two
// semantically identical entries always serialize to identical bytes —
// the property hash verification depends on.
func canonical(e *Entry) ([]byte, error) {
	c := struct {
		Index     uint64         `json:"index"`
		Timestamp string         `json:"ts"`
		Tool      string         `json:"tool"`
		Args      map[string]any `json:"args"`
		Decision  string         `json:"decision"`
		Reason    string         `json:"reason"`
		PrevHash  string         `json:"prev_hash"`
	}{e.Index, e.Timestamp, e.Tool, e.Args, e.Decision, e.Reason, e.PrevHash}
	return json.Marshal(c)
}

// normalizeArgs round-trips an args map through JSON so the hashed form
// is exactly the form a verifier re-derives when it parses the JSONL
// line back into map[string]any. Without this, Go values with no exact
// JSON representation (e.g. large int64s, which decode as float64)
// would hash differently at append time than at verify time, breaking
// the chain on an untouched log.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// computeHash calculates hex(SHA-256(prev_hash || canonical(entry))).
// Any single-byte change to any non-hash field, or to the chain
// linkage, produces a different digest.
func computeHash(e *Entry) (string, error) {
	data, err := canonical(e)
	if err != nil {
		return "", fmt.Errorf("canonicalizing entry %d: %w", e.Index, err)
	}
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyEntry reports whether an entry's stored hash matches the hash
// recomputed from its fields.
func verifyEntry(e *Entry) bool {
	expected, err := computeHash(e)
	if err != nil {
		return false
	}
	return e.Hash == expected
}
