package features

import (
	"context"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// TrainingSet is a labeled dataset encoded in the feature space fitted on it.
// Row i of X is the encoding of the example labeled Y[i].
type TrainingSet struct {
	Vectorizer *Vectorizer `json:"vectorizer"`
	X          [][]float64 `json:"X"`
	Y          []string    `json:"y"`
}

// Encode re-annotates every example, fits a vectorizer on the resulting
// records and transforms them. Examples whose entities do not resolve to a
// single token yield an empty record and are skipped; the number skipped is
// returned. Annotation failures abort.
func (x *Extractor) Encode(ctx context.Context, examples []types.LabeledExample) (*TrainingSet, int, error) {
	var (
		records []Record
		labels  []string
		skipped int
	)
	for _, ex := range examples {
		rec, err := x.Extract(ctx, ex.Entity1, ex.Entity2, ex.Sentence)
		if err != nil {
			return nil, skipped, err
		}
		if len(rec) == 0 {
			skipped++
			continue
		}
		records = append(records, rec)
		labels = append(labels, ex.Label)
	}

	v := Fit(records)
	set := &TrainingSet{Vectorizer: v, X: make([][]float64, len(records)), Y: labels}
	for i, r := range records {
		set.X[i] = v.Transform(r)
	}
	if set.Y == nil {
		set.Y = []string{}
	}
	return set, skipped, nil
}
