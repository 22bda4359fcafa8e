package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/glassd/internal/history"
)

// DefaultTable receives events when the DSN names no table.
const DefaultTable = "overlay_history"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr, which is either host:port or a clickhouse:// DSN
// understood by clickhouse.ParseDSN, and creates the table when missing.
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid ClickHouse table name %q", table)
	}
	dsn := addr
	if !strings.Contains(dsn, "://") {
		dsn = "clickhouse://" + dsn
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse ClickHouse DSN: %w", err)
	}
	if opts.Auth.Database == "" {
		opts.Auth.Database = "default"
	}
	if opts.Auth.Username == "" {
		opts.Auth.Username = "default"
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create ClickHouse table: %w", err)
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id UUID,
			type LowCardinality(String),
			occurred_at DateTime64(6, 'UTC'),
			entity_id String,
			profile String,
			pid UInt32,
			args Array(String),
			error String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, entity_id)`)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, type, occurred_at, entity_id, profile, pid, args, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	args := e.Args
	if args == nil {
		args = []string{}
	}
	err := s.conn.Exec(ctx, query,
		e.ID,
		string(e.Type),
		e.OccurredAt,
		e.EntityID,
		e.Profile,
		uint32(e.PID),
		args,
		e.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
