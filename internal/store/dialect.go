package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Dialect abstracts the differences between the two supported journal
// backends. The journal's SQL is simple enough that placeholders, timestamp
// expressions, array encoding and DDL are the only divergence points.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// SystemTablesSQL returns the DDL for the journal tables.
	SystemTablesSQL() string

	// ArrayParam encodes a string slice for storage. Both backends store
	// JSON text; kept on the dialect so a TEXT[] backend stays possible.
	ArrayParam(values []string) any

	// ScanArray decodes a stored slice back into []string.
	ScanArray(src any) ([]string, error)
}

// NewDialect creates a Dialect for the given driver name ("postgres" or
// "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

func jsonArrayParam(values []string) any {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func jsonScanArray(src any) ([]string, error) {
	var raw string
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return nil, fmt.Errorf("unexpected array column type %T", src)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode array column: %w", err)
	}
	return out, nil
}

var errUnsupportedDriver = errors.New("unsupported database driver")

// --- PostgreSQL ---

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string        { return "postgres" }
func (d *PostgresDialect) DriverName() string  { return "pgx" }
func (d *PostgresDialect) NowExpr() string     { return "NOW()" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return `
CREATE TABLE IF NOT EXISTS _sessions (
    id          TEXT PRIMARY KEY,
    group_id    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _turns (
    session_id  TEXT NOT NULL REFERENCES _sessions(id) ON DELETE CASCADE,
    turn_id     INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    payload     JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (session_id, turn_id)
);

CREATE TABLE IF NOT EXISTS _datapoints (
    session_id  TEXT NOT NULL REFERENCES _sessions(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    vals        TEXT,
    PRIMARY KEY (session_id, name)
);

CREATE TABLE IF NOT EXISTS _events (
    id           BIGSERIAL PRIMARY KEY,
    session_id   TEXT,
    component    TEXT NOT NULL,
    action       TEXT NOT NULL,
    status       TEXT NOT NULL,
    duration_ms  DOUBLE PRECISION,
    metadata     JSONB,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
}

func (d *PostgresDialect) ArrayParam(values []string) any   { return jsonArrayParam(values) }
func (d *PostgresDialect) ScanArray(src any) ([]string, error) { return jsonScanArray(src) }

// --- SQLite ---

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string        { return "sqlite" }
func (d *SQLiteDialect) DriverName() string  { return "sqlite" }
func (d *SQLiteDialect) NowExpr() string     { return "CURRENT_TIMESTAMP" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return `
CREATE TABLE IF NOT EXISTS _sessions (
    id          TEXT PRIMARY KEY,
    group_id    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS _turns (
    session_id  TEXT NOT NULL REFERENCES _sessions(id) ON DELETE CASCADE,
    turn_id     INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    payload     TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, turn_id)
);

CREATE TABLE IF NOT EXISTS _datapoints (
    session_id  TEXT NOT NULL REFERENCES _sessions(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    vals        TEXT,
    PRIMARY KEY (session_id, name)
);

CREATE TABLE IF NOT EXISTS _events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT,
    component    TEXT NOT NULL,
    action       TEXT NOT NULL,
    status       TEXT NOT NULL,
    duration_ms  REAL,
    metadata     TEXT,
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
}

func (d *SQLiteDialect) ArrayParam(values []string) any   { return jsonArrayParam(values) }
func (d *SQLiteDialect) ScanArray(src any) ([]string, error) { return jsonScanArray(src) }
