// Package classifier loads a trained relation classifier artifact and runs
// inference. The artifact bundles a tree ensemble with the vectorizer it was
// trained against; fitting happens elsewhere.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/soundprediction/go-kgextract/pkg/features"
)

// ErrNotFound is returned when no artifact exists at the configured path.
// It selects rule-only relation extraction rather than failing.
var ErrNotFound = errors.New("classifier artifact not found")

// Tree is one decision tree in array form. Node i is a leaf when
// ChildrenLeft[i] == -1; otherwise samples with x[Feature[i]] <= Threshold[i]
// go left. Value[i] holds per-class weights.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Forest averages the normalized leaf distributions of its trees.
type Forest struct {
	Classes []string `json:"classes"`
	Trees   []Tree   `json:"trees"`
}

// Bundle is the artifact: model plus vectorizer. It is read-only after
// loading and safe for concurrent use.
type Bundle struct {
	Model      *Forest               `json:"model"`
	Vectorizer *features.Vectorizer `json:"vectorizer"`
}

// Read decodes and validates a bundle.
func Read(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode classifier artifact: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Load reads the bundle at path. A missing file yields ErrNotFound.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open classifier artifact: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Validate checks structural consistency of the bundle.
func (b *Bundle) Validate() error {
	if b.Model == nil || b.Vectorizer == nil {
		return fmt.Errorf("classifier artifact needs both model and vectorizer")
	}
	if err := b.Vectorizer.Validate(); err != nil {
		return err
	}
	if len(b.Model.Classes) == 0 || len(b.Model.Trees) == 0 {
		return fmt.Errorf("classifier artifact has no classes or trees")
	}
	dim := b.Vectorizer.Dim()
	for ti, t := range b.Model.Trees {
		n := len(t.ChildrenLeft)
		if n == 0 || len(t.ChildrenRight) != n || len(t.Feature) != n ||
			len(t.Threshold) != n || len(t.Value) != n {
			return fmt.Errorf("tree %d: inconsistent node arrays", ti)
		}
		for i := 0; i < n; i++ {
			l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
			if l == -1 {
				if len(t.Value[i]) != len(b.Model.Classes) {
					return fmt.Errorf("tree %d node %d: value width %d, want %d", ti, i, len(t.Value[i]), len(b.Model.Classes))
				}
				continue
			}
			if l <= i || r <= i || l >= n || r >= n {
				return fmt.Errorf("tree %d node %d: child index out of order", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= dim {
				return fmt.Errorf("tree %d node %d: feature %d outside %d columns", ti, i, t.Feature[i], dim)
			}
		}
	}
	return nil
}

// Predict classifies a feature record.
func (b *Bundle) Predict(rec features.Record) string {
	return b.Model.Predict(b.Vectorizer.Transform(rec))
}

// Predict returns the class with the highest averaged probability; ties go
// to the earlier class.
func (f *Forest) Predict(x []float64) string {
	proba := f.Proba(x)
	best := 0
	for i := range proba {
		if proba[i] > proba[best] {
			best = i
		}
	}
	return f.Classes[best]
}

// Proba returns averaged class probabilities for x.
func (f *Forest) Proba(x []float64) []float64 {
	out := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		leaf := t.Value[t.leaf(x)]
		total := 0.0
		for _, w := range leaf {
			total += w
		}
		if total == 0 {
			continue
		}
		for i, w := range leaf {
			out[i] += w / total
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

// leaf walks x down the tree. Child indices always grow (checked by
// Validate), so the walk terminates.
func (t Tree) leaf(x []float64) int {
	i := 0
	for t.ChildrenLeft[i] != -1 {
		if x[t.Feature[i]] <= t.Threshold[i] {
			i = t.ChildrenLeft[i]
		} else {
			i = t.ChildrenRight[i]
		}
	}
	return i
}
