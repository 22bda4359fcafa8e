package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/glassd/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// one connection: keeps ":memory:" databases shared and serializes writers
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks from other processes
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tags(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL COLLATE NOCASE UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS entity_tags(
			entity_id TEXT NOT NULL,
			tag_id INTEGER NOT NULL,
			PRIMARY KEY(entity_id, tag_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON entity_tags(tag_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) ListTags(ctx context.Context, prefix string) ([]store.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM tags
		WHERE lower(name) LIKE ? ESCAPE '\'
		ORDER BY id;`, store.LikePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTags(rows)
}

func (s *DB) CreateTag(ctx context.Context, name string) (store.Tag, error) {
	n, err := store.NormalizeName(name)
	if err != nil {
		return store.Tag{}, err
	}
	var t store.Tag
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tags(name) VALUES(?)
		ON CONFLICT DO NOTHING
		RETURNING id, name;`, n).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, store.ErrTagExists
	}
	return t, err
}

func (s *DB) DeleteTag(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_tags WHERE tag_id=?;`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrTagNotFound
	}
	return tx.Commit()
}

func (s *DB) TagByName(ctx context.Context, name string) (store.Tag, error) {
	var t store.Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name=? COLLATE NOCASE;`,
		strings.TrimSpace(name)).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, store.ErrTagNotFound
	}
	return t, err
}

func (s *DB) AssignTag(ctx context.Context, entityID string, tagID int64) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE id=?;`, tagID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTagNotFound
		}
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_tags(entity_id, tag_id) VALUES(?, ?)
		ON CONFLICT DO NOTHING;`, entityID, tagID)
	return err
}

func (s *DB) UnassignTag(ctx context.Context, entityID string, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id=? AND tag_id=?;`, entityID, tagID)
	return err
}

func (s *DB) EntityTags(ctx context.Context, entityID string) ([]store.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		JOIN entity_tags et ON et.tag_id = t.id
		WHERE et.entity_id=?
		ORDER BY t.id;`, entityID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]store.Tag, error) {
	out := make([]store.Tag, 0)
	for rows.Next() {
		var t store.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
