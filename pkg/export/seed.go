package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// ReadEntities reads an entity table written by WriteEntities (or by an
// earlier tool using the same columns). Rows with a bad id or an
// unrecoverable property blob are skipped and counted. Property blobs that
// are not valid JSON are repaired before giving up.
func ReadEntities(r io.Reader, logger *slog.Logger) ([]*types.Entity, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read entity header: %w", err)
	}
	cols := columnIndex(header)
	for _, c := range []string{"id", "name"} {
		if _, ok := cols[c]; !ok {
			return nil, 0, fmt.Errorf("entity table has no %q column", c)
		}
	}

	var (
		out     []*types.Entity
		skipped int
		line    = 1
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				logger.Warn("skipping malformed entity row", "line", line, "error", err)
				continue
			}
			return nil, skipped, fmt.Errorf("failed to read entity table: %w", err)
		}
		e, err := entityFromRow(row, cols)
		if err != nil {
			skipped++
			logger.Warn("skipping entity row", "line", line, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

// ReadEntitiesFile is ReadEntities over a file path.
func ReadEntitiesFile(path string, logger *slog.Logger) ([]*types.Entity, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open entity table: %w", err)
	}
	defer f.Close()
	return ReadEntities(f, logger)
}

func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, utf8BOM)
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func entityFromRow(row []string, cols map[string]int) (*types.Entity, error) {
	id, err := strconv.ParseInt(field(row, cols, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("bad id %q", field(row, cols, "id"))
	}
	name := field(row, cols, "name")
	if name == "" {
		return nil, fmt.Errorf("entity %d has no name", id)
	}

	props, err := ParseProperties(field(row, cols, "properties"))
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", id, err)
	}
	labels := splitLabels(field(row, cols, "labels"))
	if len(labels) == 0 {
		labels = []string{types.DefaultLabel}
	}
	return &types.Entity{
		ID:         id,
		Name:       name,
		Labels:     labels,
		Properties: props,
		Provenance: types.ProvenanceSeed,
	}, nil
}

// ParseProperties decodes a property blob. An empty blob is an empty map;
// blobs that are not valid JSON objects are run through jsonrepair first.
func ParseProperties(blob string) (map[string]interface{}, error) {
	props := map[string]interface{}{}
	if blob == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(blob), &props); err == nil {
		if props == nil {
			props = map[string]interface{}{}
		}
		return props, nil
	}
	repaired, err := jsonrepair.JSONRepair(blob)
	if err != nil {
		return nil, fmt.Errorf("unrecoverable properties %q: %w", blob, err)
	}
	props = map[string]interface{}{}
	if err := json.Unmarshal([]byte(repaired), &props); err != nil {
		return nil, fmt.Errorf("properties %q are not an object: %w", blob, err)
	}
	return props, nil
}

// ReadRelations reads a relation table written by WriteRelations. Rows with
// bad ids, no type or unrecoverable properties are skipped and counted.
func ReadRelations(r io.Reader, logger *slog.Logger) ([]*types.Relation, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read relation header: %w", err)
	}
	cols := columnIndex(header)
	for _, c := range []string{"source_id", "target_id", "type"} {
		if _, ok := cols[c]; !ok {
			return nil, 0, fmt.Errorf("relation table has no %q column", c)
		}
	}

	var (
		out     []*types.Relation
		skipped int
		line    = 1
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				logger.Warn("skipping malformed relation row", "line", line, "error", err)
				continue
			}
			return nil, skipped, fmt.Errorf("failed to read relation table: %w", err)
		}
		rel, err := relationFromRow(row, cols)
		if err != nil {
			skipped++
			logger.Warn("skipping relation row", "line", line, "error", err)
			continue
		}
		out = append(out, rel)
	}
	return out, skipped, nil
}

func relationFromRow(row []string, cols map[string]int) (*types.Relation, error) {
	src, err := strconv.ParseInt(field(row, cols, "source_id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad source id %q", field(row, cols, "source_id"))
	}
	dst, err := strconv.ParseInt(field(row, cols, "target_id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad target id %q", field(row, cols, "target_id"))
	}
	typ := field(row, cols, "type")
	if typ == "" {
		return nil, fmt.Errorf("relation %d->%d has no type", src, dst)
	}
	props, err := ParseProperties(field(row, cols, "properties"))
	if err != nil {
		return nil, fmt.Errorf("relation %d->%d: %w", src, dst, err)
	}
	return &types.Relation{SourceID: src, TargetID: dst, Type: typ, Properties: props}, nil
}

// ReadGraph reads entity.csv and relation.csv from dir. The graph is
// validated, so a relation table that references rows missing from the
// entity table is rejected.
func ReadGraph(dir string, logger *slog.Logger) (*types.Graph, error) {
	ents, _, err := ReadEntitiesFile(filepath.Join(dir, EntityFile), logger)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, RelationFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open relation table: %w", err)
	}
	defer f.Close()
	rels, _, err := ReadRelations(f, logger)
	if err != nil {
		return nil, err
	}

	g := &types.Graph{Entities: ents, Relations: rels}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent tables in %s: %w", dir, err)
	}
	return g, nil
}
