// Package relations extracts typed relation triples between known entities.
//
// Two strategies exist. When a trained classifier bundle is available every
// ordered pair of known entities found in the sentence is encoded with the
// feature extractor and classified. Otherwise a dependency-pattern rule and a
// keyword-window rule run and their results are unioned. The strategy is
// chosen once in New.
package relations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/classifier"
	"github.com/soundprediction/go-kgextract/pkg/features"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

// Mode names the active extraction strategy.
type Mode string

const (
	ModeRules      Mode = "rules"
	ModeClassifier Mode = "classifier"
)

// Strategy turns a sentence and the known entity names into triples.
type Strategy interface {
	Extract(ctx context.Context, s *nlp.Sentence, known []string) ([]types.Triple, error)
}

// Options configures an Extractor.
type Options struct {
	// Bundle selects classifier mode when non-nil.
	Bundle *classifier.Bundle
	// Features re-annotates sentences for classifier mode. When nil the
	// sentence passed to Extract is used as is.
	Features *features.Extractor
	// Keywords overrides DefaultKeywords for rule mode.
	Keywords []KeywordClass
	Logger   *slog.Logger
}

// Extractor is a relation extractor bound to one strategy.
type Extractor struct {
	strategy Strategy
	mode     Mode
	rules    *Rules
}

// New creates an extractor, choosing classifier mode when opts.Bundle is set.
func New(opts Options) *Extractor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := NewRules(opts.Keywords)
	x := &Extractor{rules: rules, strategy: rules, mode: ModeRules}
	if opts.Bundle != nil {
		x.strategy = &classifierStrategy{bundle: opts.Bundle, features: opts.Features}
		x.mode = ModeClassifier
	}
	logger.Debug("relation extractor ready", "mode", x.mode)
	return x
}

// Mode returns the strategy chosen at construction.
func (x *Extractor) Mode() Mode {
	return x.mode
}

// Rules returns the rule engine, which stays available in classifier mode
// for building training data.
func (x *Extractor) Rules() *Rules {
	return x.rules
}

// Extract returns the distinct triples of s in first-seen order. No triple
// links an entity to itself.
func (x *Extractor) Extract(ctx context.Context, s *nlp.Sentence, known []string) ([]types.Triple, error) {
	return x.strategy.Extract(ctx, s, known)
}

// Extract implements Strategy for rule mode.
func (r *Rules) Extract(_ context.Context, s *nlp.Sentence, known []string) ([]types.Triple, error) {
	return r.ExtractByRules(s, known), nil
}

type classifierStrategy struct {
	bundle   *classifier.Bundle
	features *features.Extractor
}

func (c *classifierStrategy) Extract(ctx context.Context, s *nlp.Sentence, known []string) ([]types.Triple, error) {
	text := s.Text()
	present := make([]string, 0, len(known))
	for _, e := range known {
		if e != "" && strings.Contains(text, e) {
			present = append(present, e)
		}
	}

	set := newTripleSet()
	for _, e1 := range present {
		for _, e2 := range present {
			if e1 == e2 {
				continue
			}
			rec, err := c.record(ctx, e1, e2, s)
			if err != nil {
				return nil, fmt.Errorf("failed to extract features for (%s, %s): %w", e1, e2, err)
			}
			if len(rec) == 0 {
				continue
			}
			if label := c.bundle.Predict(rec); label != types.LabelNone {
				set.add(types.Triple{Source: e1, Target: e2, Type: label})
			}
		}
	}
	return set.triples, nil
}

func (c *classifierStrategy) record(ctx context.Context, e1, e2 string, s *nlp.Sentence) (features.Record, error) {
	if c.features == nil {
		return features.FromSentence(e1, e2, s), nil
	}
	return c.features.Extract(ctx, e1, e2, s.Text())
}
