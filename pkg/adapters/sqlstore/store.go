// Package sqlstore records leads in a SQL database.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) and
// "postgres" (github.com/lib/pq). Queries are written with '?' placeholders
// and rebound for postgres.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Connection pool defaults, applied for postgres.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// ErrLeadNotFound is returned when no lead exists for a session.
var ErrLeadNotFound = errors.New("lead not found")

// Dialect names a supported database/sql driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a driver name to a Dialect. "sqlite3" and "postgresql" are accepted aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// Lead is a stored lead record with the fields captured so far.
type Lead struct {
	ID          string
	SessionID   string
	FlowID      string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Fields      map[string]string
}

// Completed reports whether the visitor reached an End node.
func (l *Lead) Completed() bool {
	return l.CompletedAt != nil
}

// Store implements ports.LeadTracker on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ ports.LeadTracker = (*Store)(nil)

// Open connects to dsn with the given dialect and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}

	switch dialect {
	case Postgres:
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	case SQLite:
		// One writer avoids SQLITE_BUSY under concurrent sessions.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}

	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	schema := sqliteSchema
	switch dialect {
	case SQLite:
	case Postgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db, dialect: dialect, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession inserts a lead row for the visitor session.
func (s *Store) CreateSession(ctx context.Context, in ports.LeadSession) (string, error) {
	if in.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	leadID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO lead_sessions (lead_id, session_id, flow_id, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		leadID, in.SessionID, in.FlowID, in.IPAddress, in.UserAgent, formatTime(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert lead for session %s: %w", in.SessionID, err)
	}
	return leadID, nil
}

// CaptureField upserts one captured value. The column name is the
// node's DBField when set, else its variable.
func (s *Store) CaptureField(ctx context.Context, c ports.FieldCapture) error {
	field := c.DBField
	if field == "" {
		field = c.Variable
	}
	if field == "" {
		field = c.NodeID
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO lead_fields (session_id, field, node_id, input_type, value, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, field) DO UPDATE SET
		   node_id = excluded.node_id,
		   input_type = excluded.input_type,
		   value = excluded.value,
		   captured_at = excluded.captured_at`),
		c.SessionID, field, c.NodeID, string(c.InputType), c.Value, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to capture field %s for session %s: %w", field, c.SessionID, err)
	}
	return nil
}

// CompleteSession stamps the lead as completed. The first completion wins.
func (s *Store) CompleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE lead_sessions SET completed_at = COALESCE(completed_at, ?) WHERE session_id = ?`),
		formatTime(s.now()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete lead for session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: session %s", ErrLeadNotFound, sessionID)
	}
	return nil
}

// Lead returns the lead recorded for sessionID.
func (s *Store) Lead(ctx context.Context, sessionID string) (*Lead, error) {
	var (
		lead      Lead
		created   string
		completed sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT lead_id, session_id, flow_id, ip_address, user_agent, created_at, completed_at
		 FROM lead_sessions WHERE session_id = ?`), sessionID,
	).Scan(&lead.ID, &lead.SessionID, &lead.FlowID, &lead.IPAddress, &lead.UserAgent, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrLeadNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lead: %w", err)
	}

	if lead.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		lead.CompletedAt = &t
	}

	lead.Fields, err = s.fields(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

// Leads lists the session ids of every lead of flowID, oldest first.
func (s *Store) Leads(ctx context.Context, flowID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT session_id FROM lead_sessions WHERE flow_id = ? ORDER BY created_at, session_id`), flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return ids, nil
}

func (s *Store) fields(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT field, value FROM lead_fields WHERE session_id = ?`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead fields: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		fields[k] = v
	}
	return fields, rows.Err()
}

// rebind turns '?' placeholders into '$n' for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
