// Package telemetry records the warnings and errors of extraction runs in a
// DuckDB table so dropped relations and skipped rows can be audited later.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID tags ctx with a run id recorded on every event logged with it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run id stored by WithRunID.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// DuckDBHandler is a slog.Handler that forwards every record to next and
// also stores records at or above MinLevel in the run_events table.
type DuckDBHandler struct {
	next     slog.Handler
	db       *sql.DB
	minLevel slog.Level
	attrs    []slog.Attr
	groups   []string
}

// NewDuckDBHandler creates the run_events table if needed. Records at Warn
// and above are stored.
func NewDuckDBHandler(next slog.Handler, db *sql.DB) (*DuckDBHandler, error) {
	h := &DuckDBHandler{next: next, db: db, minLevel: slog.LevelWarn}
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

func (h *DuckDBHandler) initSchema() error {
	_, err := h.db.Exec(`
	CREATE TABLE IF NOT EXISTS run_events (
		id VARCHAR PRIMARY KEY,
		timestamp TIMESTAMP,
		level VARCHAR,
		message VARCHAR,
		run_id VARCHAR,
		source_file VARCHAR,
		line_number INTEGER,
		attributes JSON
	);
	`)
	return err
}

// Enabled implements slog.Handler
func (h *DuckDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel || h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *DuckDBHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next.Enabled(ctx, r.Level) {
		if err := h.next.Handle(ctx, r); err != nil {
			return err
		}
	}
	if r.Level < h.minLevel {
		return nil
	}

	attrs := make(map[string]interface{}, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		attrs[qualify(prefix, a.Key)] = attrValue(a.Value)
		return true
	})

	runID := RunID(ctx)
	if runID == "" {
		if v, ok := attrs["run_id"].(string); ok {
			runID = v
		}
	}

	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		attrsJSON = []byte("{}")
	}

	var sourceFile string
	var line int
	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		sourceFile, line = f.File, f.Line
	}

	_, err = h.db.ExecContext(context.WithoutCancel(ctx), `
	INSERT INTO run_events (
		id, timestamp, level, message, run_id,
		source_file, line_number, attributes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`,
		uuid.New().String(), r.Time.UTC(), r.Level.String(), r.Message, runID,
		sourceFile, line, string(attrsJSON),
	)
	if err != nil {
		// the record already reached next; losing the audit row is not fatal
		fmt.Fprintf(os.Stderr, "failed to record event in DuckDB: %v\n", err)
	}
	return nil
}

func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	case slog.KindGroup:
		m := make(map[string]interface{})
		for _, a := range v.Group() {
			m[a.Key] = attrValue(a.Value)
		}
		return m
	case slog.KindDuration, slog.KindTime:
		return v.String()
	default:
		return v.Any()
	}
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// WithAttrs implements slog.Handler. Keys are stored qualified by the
// groups open at the time.
func (h *DuckDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	merged := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: qualify(prefix, a.Key), Value: a.Value})
	}
	return &DuckDBHandler{next: h.next.WithAttrs(attrs), db: h.db, minLevel: h.minLevel, attrs: merged, groups: h.groups}
}

// WithGroup implements slog.Handler
func (h *DuckDBHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, len(h.groups)+1)
	copy(groups, h.groups)
	groups[len(h.groups)] = name
	return &DuckDBHandler{next: h.next.WithGroup(name), db: h.db, minLevel: h.minLevel, attrs: h.attrs, groups: groups}
}

// Event is one stored record.
type Event struct {
	Level   string
	Message string
	RunID   string
	Attrs   map[string]interface{}
}

// Events returns the stored records of a run in time order. An empty runID
// returns every record.
func Events(ctx context.Context, db *sql.DB, runID string) ([]Event, error) {
	q := `SELECT level, message, run_id, CAST(attributes AS VARCHAR) FROM run_events`
	var args []interface{}
	if runID != "" {
		q += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	q += ` ORDER BY timestamp, rowid`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e     Event
			rid   sql.NullString
			attrs sql.NullString
		)
		if err := rows.Scan(&e.Level, &e.Message, &rid, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		e.RunID = rid.String
		e.Attrs = map[string]interface{}{}
		if attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attrs); err != nil {
				return nil, fmt.Errorf("failed to decode run event attributes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
