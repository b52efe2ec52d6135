package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alonegg/scip-client/pkg/db"
)

// journalReader is the part of *db.Journal the HTTP surface reads from.
type journalReader interface {
	Ping(ctx context.Context) error
	ListRecent(ctx context.Context, params db.ListRecentParams) ([]db.JournalEntry, error)
	ListByCorrelation(ctx context.Context, correlationID string) ([]db.JournalEntry, error)
}

// healthOutput is the /health response body.
type healthOutput struct {
	Status    string          `json:"status"`
	Pending   int             `json:"pending"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.Handle(s.cfg.CallbackPath, s.dispatcher.HTTPHandler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/journal", s.handleJournal)
	return mux
}

// health checks each enabled dependency. Disabled ones are not reported.
func (s *Server) health(ctx context.Context) *healthOutput {
	h := &healthOutput{
		Status:    "healthy",
		Pending:   s.registry.Len(),
		Checks:    make(map[string]bool),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil {
		h.Checks["comms"] = s.nc.IsConnected()
	}
	if s.journal != nil {
		err := s.journal.Ping(ctx)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - journal ping failed: %v", logPrefix, err))
		}
		h.Checks["database"] = err == nil
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

// handleJournal lists journal entries as JSON, either for ?correlationId= or the
// most recent ones (optionally ?operation= and ?limit=).
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()

	q := r.URL.Query()
	var (
		entries []db.JournalEntry
		err     error
	)
	if id := q.Get("correlationId"); id != "" {
		entries, err = s.journal.ListByCorrelation(ctx, id)
	} else {
		limit, convErr := strconv.Atoi(q.Get("limit"))
		if q.Get("limit") != "" && (convErr != nil || limit <= 0) {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		entries, err = s.journal.ListRecent(ctx, db.ListRecentParams{Operation: q.Get("operation"), Limit: limit})
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%s - journal query failed: %v", logPrefix, err))
		http.Error(w, "journal query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []db.JournalEntry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>SCIP Client</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    section { margin-bottom: 2rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>SCIP Client</h1>
  <p class="meta">Gateway callbacks are accepted at <code>{{.CallbackURL}}</code>.</p>

  <section>
    <h2>Health</h2>
    <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
    <p>Pending correlations: <span class="stat">{{.Health.Pending}}</span></p>
    {{range $name, $ok := .Health.Checks}}
    <p>{{$name}}: {{if $ok}}<span class="stat">OK</span>{{else}}<span class="error">Failed</span>{{end}}</p>
    {{end}}
    <p>Timestamp: {{.Health.Timestamp}}</p>
  </section>

  {{if .JournalEnabled}}
  <section>
    <h2>Recent operations</h2>
    {{if .JournalError}}
    <p class="error">Could not load the operation journal: {{.JournalError}}</p>
    {{else if .Entries}}
    <table>
      <thead><tr><th>Occurred</th><th>Operation</th><th>Phase</th><th>Correlation</th><th>Endpoint</th><th>Error</th></tr></thead>
      <tbody>
      {{range .Entries}}
      <tr>
        <td>{{.Occurred.Format "2006-01-02 15:04:05"}}</td>
        <td>{{.Operation}}</td>
        <td>{{.Phase}}</td>
        <td>{{if .CorrelationIdentifier}}{{.CorrelationIdentifier}}{{end}}</td>
        <td>{{.Endpoint}}</td>
        <td>{{if .ErrorMessage}}<span class="error">{{.ErrorMessage}}</span>{{end}}</td>
      </tr>
      {{end}}
      </tbody>
    </table>
    {{else}}
    <p>No operations recorded yet.</p>
    {{end}}
  </section>
  {{end}}
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	CallbackURL    string
	Health         *healthOutput
	JournalEnabled bool
	Entries        []db.JournalEntry
	JournalError   string
}

// handleHome returns an HTTP handler for the status page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			CallbackURL:    s.cfg.EffectiveCallbackURL(),
			Health:         s.health(ctx),
			JournalEnabled: s.journal != nil,
		}
		if s.journal != nil {
			entries, err := s.journal.ListRecent(ctx, db.ListRecentParams{Limit: 25})
			if err != nil {
				data.JournalError = err.Error()
			} else {
				data.Entries = entries
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
