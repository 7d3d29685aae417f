// Package notify publishes run summaries so downstream tooling (IDE index
// refreshers, dashboards) learns about new compile commands.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pkgindex/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgindex/internal/logfields"
	"git.home.luguber.info/inful/pkgindex/internal/manifest"
)

const publishTimeout = 5 * time.Second

// Summary is the message published after every run.
type Summary struct {
	RunID           string    `json:"run_id"`
	Board           string    `json:"board"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Started         time.Time `json:"started"`
	Finished        time.Time `json:"finished"`
	Packages        int       `json:"packages"`
	Skipped         int       `json:"skipped"`
	Conflicts       int       `json:"conflicts"`
	CompileCommands int       `json:"compile_commands"`
	Targets         int       `json:"targets"`
	Outputs         []string  `json:"outputs,omitempty"`
}

// FromManifest summarizes m.
func FromManifest(m *manifest.RunManifest) Summary {
	s := Summary{
		RunID:           m.ID,
		Board:           m.Board,
		Status:          m.Status,
		Error:           m.Error,
		Started:         m.Started,
		Finished:        m.Finished,
		Packages:        m.Counts.Packages,
		Skipped:         m.Counts.Skipped,
		Conflicts:       m.Counts.Conflicts,
		CompileCommands: m.Counts.CompileCommands,
		Targets:         m.Counts.Targets,
	}
	for _, o := range m.Outputs {
		s.Outputs = append(s.Outputs, o.Path)
	}
	return s
}

// Publisher delivers run summaries.
type Publisher interface {
	Publish(ctx context.Context, s Summary) error
	Close() error
}

// NoopPublisher drops every summary.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Summary) error { return nil }
func (NoopPublisher) Close() error                           { return nil }

// NATSPublisher publishes summaries as JSON on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("pkgindex"),
		nats.Timeout(publishTimeout),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS notifications enabled", logfields.URL(url), logfields.Subject(subject))
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish sends s and waits until the server acknowledged the flush.
func (p *NATSPublisher) Publish(ctx context.Context, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish run summary").
			WithContext("subject", p.subject).
			Build()
	}

	// FlushWithContext requires a deadline.
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to flush run summary").
			WithContext("subject", p.subject).
			Build()
	}
	slog.Debug("Published run summary", logfields.RunID(s.RunID), logfields.Subject(p.subject))
	return nil
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}
