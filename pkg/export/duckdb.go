package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// DuckDBSink writes graphs into entities, relations and runs tables.
// Entities are keyed by id and relations by (source_id, target_id, type), so
// rewriting a run replaces rows instead of duplicating them.
type DuckDBSink struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewDuckDBSink opens (or creates) the database at dbPath.
func NewDuckDBSink(dbPath string, logger *slog.Logger) (*DuckDBSink, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &DuckDBSink{db: db, path: dbPath, logger: logger}
	if err := s.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *DuckDBSink) createTables(ctx context.Context) error {
	stmts := []struct{ name, ddl string }{
		{"entities", `
			CREATE TABLE IF NOT EXISTS entities (
				id BIGINT PRIMARY KEY,
				name VARCHAR NOT NULL,
				labels VARCHAR,
				properties JSON,
				run_id VARCHAR
			)`},
		{"relations", `
			CREATE TABLE IF NOT EXISTS relations (
				source_id BIGINT NOT NULL,
				target_id BIGINT NOT NULL,
				type VARCHAR NOT NULL,
				properties JSON,
				run_id VARCHAR,
				PRIMARY KEY (source_id, target_id, type)
			)`},
		{"runs", `
			CREATE TABLE IF NOT EXISTS runs (
				run_id VARCHAR PRIMARY KEY,
				created_at TIMESTAMP,
				entity_count INTEGER,
				relation_count INTEGER
			)`},
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", st.name, err)
		}
	}
	return nil
}

// Write implements Sink. The whole graph is written in one transaction.
func (s *DuckDBSink) Write(ctx context.Context, g *types.Graph) error {
	if err := validate(g); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entities (id, name, labels, properties, run_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity statement: %w", err)
	}
	defer entStmt.Close()

	for _, e := range g.Entities {
		props, err := marshalProperties(e.Properties)
		if err != nil {
			return fmt.Errorf("entity %d: %w", e.ID, err)
		}
		if _, err := entStmt.ExecContext(ctx, e.ID, e.Name, joinLabels(e.Labels), props, g.RunID); err != nil {
			return fmt.Errorf("failed to write entity %d: %w", e.ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO relations (source_id, target_id, type, properties, run_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare relation statement: %w", err)
	}
	defer relStmt.Close()

	for _, r := range g.Relations {
		props, err := marshalProperties(r.Properties)
		if err != nil {
			return fmt.Errorf("relation %d->%d: %w", r.SourceID, r.TargetID, err)
		}
		if _, err := relStmt.ExecContext(ctx, r.SourceID, r.TargetID, r.Type, props, g.RunID); err != nil {
			return fmt.Errorf("failed to write relation %d->%d: %w", r.SourceID, r.TargetID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, created_at, entity_count, relation_count)
		VALUES (?, ?, ?, ?)
	`, g.RunID, time.Now().UTC(), len(g.Entities), len(g.Relations)); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Info("exported graph to duckdb", "path", s.path, "entities", len(g.Entities), "relations", len(g.Relations))
	return nil
}

// Entities reads the entity table back, ordered by id.
func (s *DuckDBSink) Entities(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, labels, CAST(properties AS VARCHAR) FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		var (
			e      types.Entity
			labels sql.NullString
			props  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &labels, &props); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e.Labels = splitLabels(labels.String)
		e.Properties, err = ParseProperties(props.String)
		if err != nil {
			s.logger.Warn("skipping entity with bad properties", "id", e.ID, "error", err)
			continue
		}
		e.Provenance = types.ProvenanceSeed
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Graph reads the stored tables back as one graph stamped with the most
// recent run id.
func (s *DuckDBSink) Graph(ctx context.Context) (*types.Graph, error) {
	ents, err := s.Entities(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, type, CAST(properties AS VARCHAR)
		FROM relations ORDER BY source_id, target_id, type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var rels []*types.Relation
	for rows.Next() {
		var (
			r     types.Relation
			props sql.NullString
		)
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.Type, &props); err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}
		r.Properties, err = ParseProperties(props.String)
		if err != nil {
			s.logger.Warn("skipping relation with bad properties", "source_id", r.SourceID, "target_id", r.TargetID, "error", err)
			continue
		}
		rels = append(rels, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var runID sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY created_at DESC LIMIT 1`).Scan(&runID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read latest run: %w", err)
	}

	g := &types.Graph{RunID: runID.String, Entities: ents, Relations: rels}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent tables in %s: %w", s.path, err)
	}
	return g, nil
}

// Count returns the number of rows in table, which must be one of the
// tables this sink creates.
func (s *DuckDBSink) Count(ctx context.Context, table string) (int64, error) {
	switch table {
	case "entities", "relations", "runs":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Close implements Sink.
func (s *DuckDBSink) Close() error {
	return s.db.Close()
}
