// Package export writes assembled graphs to their output boundary: CSV
// tables, a DuckDB database or a Neo4j graph. It also reads entity tables
// back in to seed later runs.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// Sink receives a complete graph. Implementations validate the graph before
// writing anything.
type Sink interface {
	Write(ctx context.Context, g *types.Graph) error
	Close() error
}

// Multi fans a graph out to several sinks in order, stopping at the first
// failure.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, g *types.Graph) error {
	for _, s := range m {
		if err := s.Write(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LabelSeparator joins entity labels in tabular output.
const LabelSeparator = "|"

func joinLabels(labels []string) string {
	return strings.Join(labels, LabelSeparator)
}

func splitLabels(s string) []string {
	var out []string
	for _, l := range strings.Split(s, LabelSeparator) {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// marshalProperties encodes a property map as compact JSON with non-ASCII
// text and HTML characters left as is. A nil map encodes as {}.
func marshalProperties(props map[string]interface{}) (string, error) {
	if props == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(props); err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func validate(g *types.Graph) error {
	if g == nil {
		return fmt.Errorf("nothing to export: graph is nil")
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to export: %w", err)
	}
	return nil
}
