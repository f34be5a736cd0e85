// Package dataset builds labeled relation examples for classifier training.
// Positive labels come from the rule engine; every other ordered entity pair
// of a sentence becomes a negative example.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/entities"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/relations"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

// Builder produces labeled examples from raw text.
type Builder struct {
	annotator    nlp.Annotator
	entities     *entities.Extractor
	rules        *relations.Rules
	preprocessor *nlp.Preprocessor
	logger       *slog.Logger
}

// NewBuilder creates a builder. Nil rules select the default keyword table,
// a nil preprocessor the default synonyms and a nil logger slog.Default().
func NewBuilder(annotator nlp.Annotator, ents *entities.Extractor, rules *relations.Rules, pre *nlp.Preprocessor, logger *slog.Logger) *Builder {
	if ents == nil {
		ents = entities.NewExtractor(nil, nil)
	}
	if rules == nil {
		rules = relations.NewRules(nil)
	}
	if pre == nil {
		pre = nlp.NewPreprocessor(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{annotator: annotator, entities: ents, rules: rules, preprocessor: pre, logger: logger}
}

// Build reads r line by line and returns the arbitrated examples in
// first-seen key order.
func (b *Builder) Build(ctx context.Context, r io.Reader) ([]types.LabeledExample, error) {
	var raw []types.LabeledExample
	positives, negatives := 0, 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, sent := range b.preprocessor.Sentences(line) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s, err := b.annotator.Annotate(ctx, sent)
			if err != nil {
				return nil, fmt.Errorf("failed to annotate %q: %w", sent, err)
			}
			ex, pos := b.sentenceExamples(sent, s)
			positives += pos
			negatives += len(ex) - pos
			raw = append(raw, ex...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source text: %w", err)
	}

	out := Arbitrate(raw)
	b.logger.Info("dataset built",
		"examples", len(out),
		"positives", positives,
		"negatives", negatives,
		"merged", len(raw)-len(out),
	)
	return out, nil
}

// sentenceExamples returns the examples of one sentence and how many of
// them are positive. Sentences with fewer than two entities yield nothing.
func (b *Builder) sentenceExamples(sent string, s *nlp.Sentence) ([]types.LabeledExample, int) {
	ents := b.entities.Extract(s)
	if len(ents) < 2 {
		return nil, 0
	}
	merged := b.entities.MergeTerms(s)

	var out []types.LabeledExample
	covered := make(map[[2]string]bool)
	for _, t := range b.rules.ExtractByRules(merged, ents) {
		out = append(out, types.LabeledExample{Sentence: sent, Entity1: t.Source, Entity2: t.Target, Label: t.Type})
		covered[[2]string{t.Source, t.Target}] = true
	}
	pos := len(out)

	for _, e1 := range ents {
		for _, e2 := range ents {
			if e1 == e2 || covered[[2]string{e1, e2}] {
				continue
			}
			// literal substring test on the sentence text, not on tokens
			if strings.Contains(sent, e1) && strings.Contains(sent, e2) {
				out = append(out, types.LabeledExample{Sentence: sent, Entity1: e1, Entity2: e2, Label: types.LabelNone})
			}
		}
	}
	return out, pos
}

// Arbitrate keeps one example per (sentence, entity1, entity2), choosing
// the label with the highest priority. The chosen label does not depend on
// input order; output follows first-seen key order.
func Arbitrate(examples []types.LabeledExample) []types.LabeledExample {
	index := make(map[types.ExampleKey]int, len(examples))
	out := make([]types.LabeledExample, 0, len(examples))
	for _, x := range examples {
		k := x.Key()
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, x)
			continue
		}
		if better(x.Label, out[i].Label) {
			out[i].Label = x.Label
		}
	}
	return out
}

// better reports whether label a beats b. Equal priorities fall back to
// string order so unknown labels still arbitrate deterministically.
func better(a, b string) bool {
	pa, pb := types.Priority(a), types.Priority(b)
	if pa != pb {
		return pa > pb
	}
	return a < b
}

// Write encodes examples as one indented JSON array without HTML escaping.
func Write(w io.Writer, examples []types.LabeledExample) error {
	if examples == nil {
		examples = []types.LabeledExample{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(examples); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return nil
}

// Read decodes a training set written by Write.
func Read(r io.Reader) ([]types.LabeledExample, error) {
	var examples []types.LabeledExample
	if err := json.NewDecoder(r).Decode(&examples); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return examples, nil
}
