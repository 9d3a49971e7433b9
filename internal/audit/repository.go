package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// List limits.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one journaled connection attempt.
type Entry struct {
	ID         string    `json:"id"`
	Transport  string    `json:"transport"`
	Endpoint   string    `json:"endpoint"`
	TLS        bool      `json:"tls"`
	AuthMode   string    `json:"auth_mode"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Succeeded reports whether the attempt reached the protocol runtime.
func (e Entry) Succeeded() bool {
	return e.Error == "" && e.State == connector.StateHandedOff.String()
}

// EntryFromAttempt converts a finished attempt into a journal entry.
func EntryFromAttempt(a connector.Attempt) Entry {
	e := Entry{
		ID:         a.ID,
		Transport:  a.Transport,
		Endpoint:   a.Endpoint,
		TLS:        a.TLS,
		AuthMode:   a.Mode.String(),
		State:      a.State.String(),
		StartedAt:  a.StartedAt.UTC(),
		DurationMS: a.Duration.Milliseconds(),
	}
	if a.Err != nil {
		e.Error = a.Err.Error()
	}
	return e
}

// Filter controls which entries List returns.
type Filter struct {
	Transport  string // optional: "tcp" or "websocket"
	State      string // optional: final lifecycle state
	FailedOnly bool
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists journal entries.
type Repository interface {
	Create(ctx context.Context, e Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps the journal in the connection_attempts table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordAttempt journals a finished attempt. It lets the repository act as
// a transport recorder.
func (r *SQLiteRepository) RecordAttempt(ctx context.Context, a connector.Attempt) error {
	return r.Create(ctx, EntryFromAttempt(a))
}

// Create inserts an entry.
func (r *SQLiteRepository) Create(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("inserting connection attempt: empty id")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connection_attempts
		 (id, transport, endpoint, tls, auth_mode, state, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Transport, e.Endpoint, boolToInt(e.TLS), e.AuthMode, e.State,
		nullableString(e.Error), e.StartedAt.UTC().Format(timeLayout), e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting connection attempt: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Transport != "" {
		conditions = append(conditions, "transport = ?")
		args = append(args, filter.Transport)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}
	if filter.FailedOnly {
		conditions = append(conditions, "error IS NOT NULL")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM connection_attempts " + where //nolint:gosec // WHERE built from fixed, parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting connection attempts: %w", err)
	}

	query := `SELECT id, transport, endpoint, tls, auth_mode, state, error, started_at, duration_ms
		FROM connection_attempts ` + where + ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?` //nolint:gosec // as above
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying connection attempts: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var tls int
		var errText sql.NullString
		var startedAt string
		if err := rows.Scan(&e.ID, &e.Transport, &e.Endpoint, &tls, &e.AuthMode,
			&e.State, &errText, &startedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning connection attempt: %w", err)
		}
		e.TLS = tls != 0
		e.Error = errText.String

		t, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
		}
		e.StartedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection attempts: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
