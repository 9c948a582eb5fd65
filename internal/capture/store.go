package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rackworks/hwdiag/internal/diag"
)

var ErrClosed = errors.New("capture store closed")

// Store records wire traffic and state transitions of diagnostic runs
// into a local sqlite file, one session per Open. It implements
// diag.Recorder and never lets a persistence failure reach the
// orchestration: errors are logged and swallowed.
type Store struct {
	db      *sql.DB
	session string
}

// Row is one persisted event.
type Row struct {
	ID      int
	Session string
	At      time.Time
	Target  string
	Kind    string
	Handle  string
	Note    string
	Payload []byte
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			at TEXT NOT NULL,
			target TEXT NOT NULL,
			kind TEXT NOT NULL,
			handle TEXT DEFAULT '',
			note TEXT DEFAULT '',
			payload BLOB DEFAULT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing capture schema: %w", err)
		}
	}

	session := uuid.NewString()
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (uuid, started_at) VALUES (?,?);`,
		session, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("starting capture session: %w", err)
	}

	return &Store{db: db, session: session}, nil
}

// Session returns the identifier of the capture session.
func (s *Store) Session() string { return s.session }

// Record implements diag.Recorder.
func (s *Store) Record(ctx context.Context, ev diag.Event) {
	if s == nil || s.db == nil {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session, at, target, kind, handle, note, payload) VALUES (?,?,?,?,?,?,?);`,
		s.session, ev.Time.UTC().Format(time.RFC3339Nano), ev.Target, ev.Kind, ev.Handle, ev.Note, ev.Payload,
	)
	if err != nil {
		slog.WarnContext(ctx, "capture: recording event failed",
			"session", s.session, "target", ev.Target, "kind", ev.Kind, "error", err)
	}
}

// Events returns all events of this session in insertion order.
func (s *Store) Events(ctx context.Context) ([]Row, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session, at, target, kind, handle, note, payload
		 FROM events WHERE session=? ORDER BY id;`, s.session,
	)
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Row
	for rows.Next() {
		var r Row
		var at string
		if err := rows.Scan(&r.ID, &r.Session, &at, &r.Target, &r.Kind, &r.Handle, &r.Note, &r.Payload); err != nil {
			return nil, fmt.Errorf("scanning event row failed: %w", err)
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}
