package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/glassd/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS overlay_history(
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			profile TEXT NOT NULL DEFAULT '',
			pid INTEGER NOT NULL DEFAULT 0,
			args TEXT NOT NULL DEFAULT '[]',
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_overlay_history_entity ON overlay_history(entity_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	args, err := json.Marshal(nonNil(e.Args))
	if err != nil {
		return err
	}
	var errStr sql.NullString
	if e.Error != "" {
		errStr = sql.NullString{String: e.Error, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO overlay_history(id, occurred_at, event, entity_id, profile, pid, args, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING;`,
		e.ID, e.OccurredAt.UTC(), string(e.Type), e.EntityID, e.Profile, e.PID, string(args), errStr)
	return err
}

// ByEntity returns the recorded events of an entity, oldest first.
func (s *Sink) ByEntity(ctx context.Context, entityID string) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, event, entity_id, profile, pid, args, error
		FROM overlay_history WHERE entity_id=?
		ORDER BY occurred_at, rowid;`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]history.Event, 0)
	for rows.Next() {
		var (
			e      history.Event
			typ    string
			args   string
			errStr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &typ, &e.EntityID, &e.Profile, &e.PID, &args, &errStr); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.Error = errStr.String
		if err := json.Unmarshal([]byte(args), &e.Args); err != nil {
			return nil, err
		}
		if len(e.Args) == 0 {
			e.Args = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nonNil(a []string) []string {
	if a == nil {
		return []string{}
	}
	return a
}
