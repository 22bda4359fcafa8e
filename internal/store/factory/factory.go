package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/glassd/internal/store"
	pg "github.com/loykin/glassd/internal/store/postgres"
	sq "github.com/loykin/glassd/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		path := strings.TrimPrefix(d, "sqlite://")
		return sq.New(path)
	}
	// default to sqlite path
	return sq.New(d)
}

// Open selects a store by DSN and makes sure its schema exists.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	s, err := NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}
