package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
)

// sqliteIndex provides fast queries over the audit log using SQLite.
// The JSONL file is the source of truth; the index is a queryable
// projection that can be rebuilt from it at any time.
type sqliteIndex struct {
	db *sql.DB
}

// openIndex opens (or creates) the SQLite index database.
// WAL mode so the CLI can read while a run is appending.
func openIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			idx       INTEGER PRIMARY KEY,
			ts        TEXT NOT NULL,
			tool      TEXT NOT NULL DEFAULT '',
			args      TEXT NOT NULL DEFAULT '',
			decision  TEXT NOT NULL DEFAULT '',
			reason    TEXT NOT NULL DEFAULT '',
			prev_hash TEXT NOT NULL DEFAULT '',
			hash      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_decision ON entries(decision);
		CREATE INDEX IF NOT EXISTS idx_tool ON entries(tool);
		CREATE INDEX IF NOT EXISTS idx_ts ON entries(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &sqliteIndex{db: db}, nil
}

// insert adds an entry to the index. Best-effort — errors are logged
// but never fail the durable JSONL append.
func (idx *sqliteIndex) insert(e *Entry) {
	argsJSON, _ := json.Marshal(e.Args)

	_, err := idx.db.Exec(
		`INSERT OR REPLACE INTO entries (idx, ts, tool, args, decision, reason, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Index, e.Timestamp, e.Tool, string(argsJSON), e.Decision, e.Reason, e.PrevHash, e.Hash,
	)
	if err != nil {
		slog.Error("sqlite index insert failed", "index", e.Index, "error", err)
	}
}

// query retrieves entries matching the given params, newest first.
func (idx *sqliteIndex) query(params QueryParams) ([]Entry, error) {
	query := "SELECT idx, ts, tool, args, decision, reason, prev_hash, hash FROM entries WHERE 1=1"
	var args []any

	if params.Decision != "" {
		query += " AND decision = ?"
		args = append(args, params.Decision)
	}
	if params.Since != "" {
		query += " AND ts >= ?"
		args = append(args, params.Since)
	}

	query += " ORDER BY idx DESC"

	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite index: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var argsJSON string
		err := rows.Scan(&e.Index, &e.Timestamp, &e.Tool, &argsJSON, &e.Decision, &e.Reason, &e.PrevHash, &e.Hash)
		if err != nil {
			return nil, fmt.Errorf("scanning sqlite row: %w", err)
		}
		if argsJSON != "" && argsJSON != "null" {
			var parsed map[string]any
			if jsonErr := json.Unmarshal([]byte(argsJSON), &parsed); jsonErr == nil {
				e.Args = parsed
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// lastIndex returns the highest entry index in the index, and false if
// the index is empty.
func (idx *sqliteIndex) lastIndex() (uint64, bool) {
	var v sql.NullInt64
	err := idx.db.QueryRow("SELECT MAX(idx) FROM entries").Scan(&v)
	if err != nil || !v.Valid {
		return 0, false
	}
	return uint64(v.Int64), true
}

// close closes the SQLite database connection.
func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}
