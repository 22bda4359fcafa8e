package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/glassd/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tags(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name_lower ON tags(lower(name));`,
		`CREATE TABLE IF NOT EXISTS entity_tags(
			entity_id TEXT NOT NULL,
			tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY(entity_id, tag_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entity_tags_tag ON entity_tags(tag_id);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) ListTags(ctx context.Context, prefix string) ([]store.Tag, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name FROM tags
		WHERE lower(name) LIKE $1 ESCAPE '\'
		ORDER BY id;`, store.LikePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTags(rows)
}

func (p *DB) CreateTag(ctx context.Context, name string) (store.Tag, error) {
	n, err := store.NormalizeName(name)
	if err != nil {
		return store.Tag{}, err
	}
	var t store.Tag
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO tags(name) VALUES($1)
		ON CONFLICT DO NOTHING
		RETURNING id, name;`, n).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, store.ErrTagExists
	}
	return t, err
}

// DeleteTag removes the tag; assignments go with it through the cascade.
func (p *DB) DeleteTag(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tags WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrTagNotFound
	}
	return nil
}

func (p *DB) TagByName(ctx context.Context, name string) (store.Tag, error) {
	var t store.Tag
	err := p.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE lower(name)=lower($1);`,
		strings.TrimSpace(name)).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Tag{}, store.ErrTagNotFound
	}
	return t, err
}

func (p *DB) AssignTag(ctx context.Context, entityID string, tagID int64) error {
	var one int
	if err := p.db.QueryRowContext(ctx, `SELECT 1 FROM tags WHERE id=$1;`, tagID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTagNotFound
		}
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO entity_tags(entity_id, tag_id) VALUES($1, $2)
		ON CONFLICT DO NOTHING;`, entityID, tagID)
	return err
}

func (p *DB) UnassignTag(ctx context.Context, entityID string, tagID int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM entity_tags WHERE entity_id=$1 AND tag_id=$2;`, entityID, tagID)
	return err
}

func (p *DB) EntityTags(ctx context.Context, entityID string) ([]store.Tag, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.name FROM tags t
		JOIN entity_tags et ON et.tag_id = t.id
		WHERE et.entity_id=$1
		ORDER BY t.id;`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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
