package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/soundprediction/go-kgextract/pkg/cache"
)

// CachedAnnotator memoizes another annotator's parses in a cache. Cache
// failures and undecodable entries fall through to the wrapped annotator.
type CachedAnnotator struct {
	next   Annotator
	cache  cache.Cache
	logger *slog.Logger
}

// NewCachedAnnotator wraps next with c. logger may be nil.
func NewCachedAnnotator(next Annotator, c cache.Cache, logger *slog.Logger) *CachedAnnotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAnnotator{next: next, cache: c, logger: logger}
}

// Annotate implements Annotator.
func (a *CachedAnnotator) Annotate(ctx context.Context, text string) (*Sentence, error) {
	raw, err := a.cache.Get(text)
	switch {
	case err == nil:
		var s Sentence
		if jerr := json.Unmarshal(raw, &s); jerr == nil && len(s.Tokens) > 0 {
			return NewSentence(s.Tokens), nil
		}
		a.logger.Warn("discarding undecodable cached parse", "sentence", text)
	case !errors.Is(err, cache.ErrKeyNotFound):
		a.logger.Warn("annotation cache read failed", "error", err)
	}

	s, err := a.next.Annotate(ctx, text)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(s); err == nil {
		if err := a.cache.Set(text, raw, 0); err != nil {
			a.logger.Warn("annotation cache write failed", "error", err)
		}
	}
	return s, nil
}
