package kgx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soundprediction/go-kgextract/pkg/cache"
	"github.com/soundprediction/go-kgextract/pkg/classifier"
	"github.com/soundprediction/go-kgextract/pkg/config"
	"github.com/soundprediction/go-kgextract/pkg/entities"
	"github.com/soundprediction/go-kgextract/pkg/features"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/relations"
	"github.com/soundprediction/go-kgextract/pkg/vocab"
)

// components are the extractors shared by every subcommand.
type components struct {
	annotator nlp.Annotator
	vocab     *vocab.Vocabulary
	entities  *entities.Extractor
	relations *relations.Extractor
	features  *features.Extractor
	bundle    *classifier.Bundle
	cache     cache.Cache
}

func (c *components) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// buildComponents wires the annotator chain and the extractors. A missing
// vocabulary or classifier artifact is logged and degrades the run.
func buildComponents(cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}

	v, err := vocab.Load(cfg.Paths.Vocabulary)
	switch {
	case errors.Is(err, vocab.ErrNotFound):
		logger.Warn("vocabulary not found, extracting entities by part of speech only", "path", cfg.Paths.Vocabulary)
		v = vocab.New(nil)
	case err != nil:
		return nil, err
	default:
		logger.Info("vocabulary loaded", "path", cfg.Paths.Vocabulary, "terms", v.Len())
	}
	c.vocab = v

	bundle, err := classifier.Load(cfg.Paths.Model)
	switch {
	case errors.Is(err, classifier.ErrNotFound):
		logger.Warn("classifier artifact not found, using rule mode", "path", cfg.Paths.Model)
	case err != nil:
		return nil, err
	default:
		c.bundle = bundle
		logger.Info("classifier loaded", "path", cfg.Paths.Model, "classes", bundle.Model.Classes)
	}

	var roots []string
	for _, kc := range relations.DefaultKeywords {
		roots = append(roots, kc.Keywords...)
	}
	gse, err := nlp.NewGseAnnotator(nlp.GseOptions{UserWords: v.Terms(), RootKeywords: roots})
	if err != nil {
		return nil, err
	}
	var annotator nlp.Annotator = gse

	if cfg.Paths.CacheDir != "" {
		bc, err := cache.NewBadgerCache(cfg.Paths.CacheDir, "parse:")
		if err != nil {
			return nil, fmt.Errorf("failed to open parse cache: %w", err)
		}
		c.cache = bc
		annotator = nlp.NewCachedAnnotator(annotator, bc, logger)
		logger.Info("parse cache enabled", "dir", cfg.Paths.CacheDir)
	}

	if cfg.Paths.Parses != "" {
		pre := nlp.NewPrecomputedAnnotator(annotator)
		loaded, skipped, err := pre.LoadParsedFile(cfg.Paths.Parses)
		if err != nil {
			c.Close()
			return nil, err
		}
		logger.Info("precomputed parses loaded", "path", cfg.Paths.Parses, "sentences", loaded, "skipped", skipped)
		annotator = pre
	}
	c.annotator = annotator

	var stop []string
	if len(cfg.Extract.StopFragments) > 0 {
		stop = cfg.Extract.StopFragments
	}
	c.entities = entities.NewExtractor(v, stop)
	c.features = features.NewExtractor(annotator)
	c.relations = relations.New(relations.Options{Bundle: c.bundle, Features: c.features, Logger: logger})
	return c, nil
}

// vocabularyCheck fails while no domain vocabulary is loaded.
func (c *components) vocabularyCheck(context.Context) error {
	if c.vocab.Len() == 0 {
		return errors.New("vocabulary is empty")
	}
	return nil
}
