package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// File names written by CSVSink.
const (
	EntityFile   = "entity.csv"
	RelationFile = "relation.csv"
)

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\ufeff"

var (
	entityHeader   = []string{"id", "name", "labels", "properties"}
	relationHeader = []string{"source_id", "target_id", "type", "properties"}
)

// CSVSink writes entity.csv and relation.csv into a directory.
type CSVSink struct {
	dir    string
	logger *slog.Logger
}

// NewCSVSink creates the output directory if needed.
func NewCSVSink(dir string, logger *slog.Logger) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{dir: dir, logger: logger}, nil
}

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, g *types.Graph) error {
	if err := validate(g); err != nil {
		return err
	}
	entPath := filepath.Join(s.dir, EntityFile)
	if err := writeFile(entPath, func(w io.Writer) error { return WriteEntities(w, g.Entities) }); err != nil {
		return err
	}
	relPath := filepath.Join(s.dir, RelationFile)
	if err := writeFile(relPath, func(w io.Writer) error { return WriteRelations(w, g.Relations) }); err != nil {
		return err
	}
	s.logger.Info("exported csv tables", "dir", s.dir, "entities", len(g.Entities), "relations", len(g.Relations))
	return nil
}

// Close implements Sink.
func (s *CSVSink) Close() error { return nil }

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteEntities writes the entity table with a BOM and header row.
func WriteEntities(w io.Writer, entities []*types.Entity) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(entityHeader); err != nil {
		return err
	}
	for _, e := range entities {
		props, err := marshalProperties(e.Properties)
		if err != nil {
			return fmt.Errorf("entity %d: %w", e.ID, err)
		}
		row := []string{strconv.FormatInt(e.ID, 10), e.Name, joinLabels(e.Labels), props}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRelations writes the relation table with a BOM and header row.
func WriteRelations(w io.Writer, relations []*types.Relation) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(relationHeader); err != nil {
		return err
	}
	for _, r := range relations {
		props, err := marshalProperties(r.Properties)
		if err != nil {
			return fmt.Errorf("relation %d->%d: %w", r.SourceID, r.TargetID, err)
		}
		row := []string{
			strconv.FormatInt(r.SourceID, 10),
			strconv.FormatInt(r.TargetID, 10),
			r.Type,
			props,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
