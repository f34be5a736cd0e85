package features

import (
	"fmt"
	"sort"
)

// Vectorizer maps feature records onto dense vectors. String values are
// one-hot encoded as "name=value", booleans become 0/1 and numbers are kept.
// Features unseen at fit time are ignored.
type Vectorizer struct {
	FeatureNames []string       `json:"feature_names"`
	Vocabulary   map[string]int `json:"vocabulary"`
}

// Fit builds the feature space from records, sorted by feature name.
func Fit(records []Record) *Vectorizer {
	names := make(map[string]bool)
	for _, r := range records {
		for k, v := range r {
			if name, ok := columnName(k, v); ok {
				names[name] = true
			}
		}
	}
	v := &Vectorizer{Vocabulary: make(map[string]int, len(names))}
	for n := range names {
		v.FeatureNames = append(v.FeatureNames, n)
	}
	sort.Strings(v.FeatureNames)
	for i, n := range v.FeatureNames {
		v.Vocabulary[n] = i
	}
	return v
}

// Validate checks that names and vocabulary agree.
func (v *Vectorizer) Validate() error {
	if v == nil {
		return fmt.Errorf("vectorizer is nil")
	}
	if v.Vocabulary == nil {
		v.Vocabulary = make(map[string]int, len(v.FeatureNames))
		for i, n := range v.FeatureNames {
			v.Vocabulary[n] = i
		}
	}
	for n, i := range v.Vocabulary {
		if i < 0 || i >= len(v.FeatureNames) || v.FeatureNames[i] != n {
			return fmt.Errorf("vectorizer column %q has inconsistent index %d", n, i)
		}
	}
	return nil
}

// Dim returns the vector length.
func (v *Vectorizer) Dim() int {
	return len(v.FeatureNames)
}

// Transform encodes r.
func (v *Vectorizer) Transform(r Record) []float64 {
	x := make([]float64, len(v.FeatureNames))
	for k, val := range r {
		name, ok := columnName(k, val)
		if !ok {
			continue
		}
		i, ok := v.Vocabulary[name]
		if !ok {
			continue
		}
		x[i] = numeric(val)
	}
	return x
}

func columnName(key string, val interface{}) (string, bool) {
	switch t := val.(type) {
	case string:
		return key + "=" + t, true
	case bool, int, int64, float64, float32:
		return key, true
	}
	return "", false
}

func numeric(val interface{}) float64 {
	switch t := val.(type) {
	case string:
		return 1
	case bool:
		if t {
			return 1
		}
		return 0
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	}
	return 0
}
