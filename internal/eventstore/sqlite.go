package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	package TEXT,
	timestamp INTEGER NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_package ON events(package);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

const selectEvents = "SELECT id, run_id, event_type, timestamp, payload, metadata FROM events"

// SQLiteStore keeps run events in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the run history database.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	// A second connection to ":memory:" would see an empty database, and
	// SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, wrap(ErrInitializeSchemaFailed, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append stores an event stamped with the current time. Events whose payload
// names a package are indexed by it.
func (s *SQLiteStore) Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error {
	var metadataJSON []byte
	if metadata != nil {
		var err error
		if metadataJSON, err = json.Marshal(metadata); err != nil {
			return wrap(ErrMarshalPayloadFailed, err)
		}
	}
	if payload == nil {
		payload = []byte("{}")
	}
	var ref struct {
		Package string `json:"package"`
	}
	_ = json.Unmarshal(payload, &ref)
	var pkg sql.NullString
	if ref.Package != "" {
		pkg = sql.NullString{String: ref.Package, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, event_type, package, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?, ?)",
		runID, eventType, pkg, time.Now().UnixMilli(), payload, metadataJSON,
	)
	if err != nil {
		return wrap(ErrEventAppendFailed, err)
	}
	return nil
}

// GetByRunID returns the events of a run in insertion order.
func (s *SQLiteStore) GetByRunID(ctx context.Context, runID string) ([]Event, error) {
	return s.query(ctx, " WHERE run_id = ? ORDER BY id", runID)
}

// GetByPackage returns every event naming pkg, oldest first.
func (s *SQLiteStore) GetByPackage(ctx context.Context, pkg string) ([]Event, error) {
	return s.query(ctx, " WHERE package = ? ORDER BY id", pkg)
}

// GetRange returns events within a time range, both ends inclusive.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.query(ctx, " WHERE timestamp >= ? AND timestamp <= ? ORDER BY id", start.UnixMilli(), end.UnixMilli())
}

// Prune deletes the events of all but the keepRuns most recently started
// runs and returns the number of deleted events. keepRuns <= 0 keeps all.
func (s *SQLiteStore) Prune(ctx context.Context, keepRuns int) (int64, error) {
	if keepRuns <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM events WHERE run_id NOT IN (
	SELECT run_id FROM events GROUP BY run_id ORDER BY MIN(id) DESC LIMIT ?
)`, keepRuns)
	if err != nil {
		return 0, wrap(ErrPruneFailed, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) query(ctx context.Context, clause string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+clause, args...)
	if err != nil {
		return nil, wrap(ErrEventQueryFailed, err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var (
			e            BaseEvent
			timestamp    int64
			metadataJSON []byte
		)
		if err := rows.Scan(&e.EventID, &e.EventRunID, &e.EventType, &timestamp, &e.EventPayload, &metadataJSON); err != nil {
			return nil, wrap(ErrEventScanFailed, err)
		}
		e.EventTimestamp = time.UnixMilli(timestamp)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.EventMetadata); err != nil {
				return nil, wrap(ErrEventScanFailed, err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(ErrEventScanFailed, err)
	}
	return events, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
