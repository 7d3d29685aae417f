package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/pkgindex/internal/eventstore"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

// Status is a snapshot of the daemon state.
type Status struct {
	StartedAt   time.Time  `json:"started_at"`
	Running     bool       `json:"running"`
	Runs        int        `json:"runs"`
	Failures    int        `json:"failures"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastTrigger string     `json:"last_trigger,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type statusResponse struct {
	Daemon  Status                   `json:"daemon"`
	History []*eventstore.RunSummary `json:"history,omitempty"`
}

func (d *Daemon) newServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.opts.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/status", d.handleStatus)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Daemon: d.Status()}
	if d.opts.History != nil {
		resp.History = d.opts.History.History()
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		slog.Warn("Cannot encode status", logfields.Error(err))
	}
}
