// Package dashboard serves the live audit monitor for `toolgate watch`.
//
//   - Web UI:     GET /            — single-page HTML monitor
//   - WebSocket:  GET /ws          — live feed of appended audit entries
//   - REST API:   GET /api/status  — tool registry and chain summary
//     GET /api/audit   — recent audit entries (?limit=N)
//     GET /api/verify  — full chain verification result
//
// The UI is a minimal embedded page: no build step, no framework.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/toolgate/toolgate/internal/audit"
)

// Monitor serves the web UI, REST API, and WebSocket feed over an
// audit log.
type Monitor struct {
	log   *audit.Log
	tools []string
	hub   *wsHub
}

// New creates a Monitor over the given audit log. The tool names are
// shown on the status endpoint. The monitor registers itself as the
// log's append observer to feed the WebSocket broadcast.
func New(log *audit.Log, tools []string) *Monitor {
	m := &Monitor{
		log:   log,
		tools: tools,
		hub:   newWSHub(),
	}
	go m.hub.run()

	log.OnAppend(m.Publish)
	return m
}

// Publish pushes an entry to every connected WebSocket client. Wired to
// the log's in-process append observer by New; `toolgate watch` also
// feeds it from Follow to mirror appends made by other processes.
func (m *Monitor) Publish(e audit.Entry) {
	if data, err := json.Marshal(e); err == nil {
		m.hub.broadcast(data)
	}
}

// Handler returns the monitor's HTTP routes.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleIndex)
	mux.HandleFunc("/ws", m.handleWebSocket)
	mux.HandleFunc("/api/status", m.handleStatus)
	mux.HandleFunc("/api/audit", m.handleAudit)
	mux.HandleFunc("/api/verify", m.handleVerify)
	return mux
}

func (m *Monitor) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(monitorHTML))
}

func (m *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := m.log.Tail(1)
	if err != nil {
		httpError(w, err)
		return
	}
	status := map[string]any{
		"tools":   m.tools,
		"entries": 0,
	}
	if len(entries) > 0 {
		status["entries"] = entries[0].Index + 1
		status["last_hash"] = entries[0].Hash
	}
	writeJSON(w, status)
}

func (m *Monitor) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := m.log.Query(audit.QueryParams{
		Decision: r.URL.Query().Get("decision"),
		Tool:     r.URL.Query().Get("tool"),
		Limit:    limit,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (m *Monitor) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := m.log.VerifyChain()
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func httpError(w http.ResponseWriter, err error) {
	slog.Error("dashboard request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// monitorHTML is the embedded single-page UI: a live table fed by the
// WebSocket, with a verify button calling /api/verify.
const monitorHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>toolgate monitor</title>
<style>
  body { font-family: ui-monospace, monospace; margin: 2rem; background: #111; color: #ddd; }
  h1 { font-size: 1.2rem; }
  table { border-collapse: collapse; width: 100%; margin-top: 1rem; }
  th, td { text-align: left; padding: 4px 10px; border-bottom: 1px solid #333; font-size: 0.85rem; }
  .ALLOW { color: #6c6; }
  .BLOCK { color: #e66; }
  #chain { margin-top: 1rem; }
  button { background: #222; color: #ddd; border: 1px solid #444; padding: 4px 12px; cursor: pointer; }
</style>
</head>
<body>
<h1>toolgate &mdash; live audit feed</h1>
<div id="chain"><button onclick="verify()">verify chain</button> <span id="verdict"></span></div>
<table>
<thead><tr><th>#</th><th>time</th><th>tool</th><th>decision</th><th>reason</th></tr></thead>
<tbody id="rows"></tbody>
</table>
<script>
function esc(s) {
  if (s == null) return '';
  return String(s).replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;').replace(/"/g,'&quot;').replace(/'/g,'&#39;');
}
function row(e) {
  const tr = document.createElement('tr');
  const cls = e.decision === 'BLOCK' ? 'BLOCK' : 'ALLOW';
  tr.innerHTML = '<td>' + e.index + '</td><td>' + esc(e.ts) + '</td><td>' + esc(e.tool) +
    '</td><td class="' + cls + '">' + esc(e.decision) + '</td><td>' + esc(e.reason) + '</td>';
  return tr;
}
fetch('/api/audit?limit=50').then(r => r.json()).then(entries => {
  const body = document.getElementById('rows');
  (entries || []).reverse().forEach(e => body.prepend(row(e)));
});
const ws = new WebSocket('ws://' + location.host + '/ws');
ws.onmessage = ev => document.getElementById('rows').prepend(row(JSON.parse(ev.data)));
function verify() {
  fetch('/api/verify').then(r => r.json()).then(v => {
    const el = document.getElementById('verdict');
    el.textContent = v.valid ? 'chain valid (' + v.entries_checked + ' entries)'
      : 'CHAIN BROKEN at entry ' + v.broken_at;
    el.className = v.valid ? 'ALLOW' : 'BLOCK';
  });
}
</script>
</body>
</html>`
