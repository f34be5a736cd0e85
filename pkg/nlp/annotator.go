package nlp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrNotAnnotated is returned by a PrecomputedAnnotator that has no parse
// for the requested text and no fallback.
var ErrNotAnnotated = errors.New("sentence not annotated")

// Annotator turns raw sentence text into a dependency-parsed Sentence.
// Implementations must be safe for concurrent use.
type Annotator interface {
	Annotate(ctx context.Context, text string) (*Sentence, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, text string) (*Sentence, error)

// Annotate calls f.
func (f AnnotatorFunc) Annotate(ctx context.Context, text string) (*Sentence, error) {
	return f(ctx, text)
}

// ParsedSentence is the interchange record for sentences parsed by an
// external dependency parser (one JSON object per line).
type ParsedSentence struct {
	Text   string   `json:"text"`
	Tokens []*Token `json:"tokens"`
}

// PrecomputedAnnotator serves parses produced ahead of time by an external
// parser, keyed by sentence text. Unknown sentences go to the fallback.
type PrecomputedAnnotator struct {
	mu       sync.RWMutex
	parses   map[string]*Sentence
	fallback Annotator
}

// NewPrecomputedAnnotator creates an empty annotator. fallback may be nil.
func NewPrecomputedAnnotator(fallback Annotator) *PrecomputedAnnotator {
	return &PrecomputedAnnotator{
		parses:   make(map[string]*Sentence),
		fallback: fallback,
	}
}

// Add registers a parse for text.
func (a *PrecomputedAnnotator) Add(text string, s *Sentence) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parses[text] = s
}

// Len returns the number of registered parses.
func (a *PrecomputedAnnotator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.parses)
}

// Annotate returns a copy of the registered parse, so callers can merge
// spans without disturbing later lookups.
func (a *PrecomputedAnnotator) Annotate(ctx context.Context, text string) (*Sentence, error) {
	a.mu.RLock()
	s, ok := a.parses[text]
	a.mu.RUnlock()
	if ok {
		return s.Clone(), nil
	}
	if a.fallback != nil {
		return a.fallback.Annotate(ctx, text)
	}
	return nil, fmt.Errorf("%w: %q", ErrNotAnnotated, text)
}

// LoadParsed reads JSON-lines parses from r. Malformed lines are skipped and
// counted.
func (a *PrecomputedAnnotator) LoadParsed(r io.Reader) (loaded, skipped int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec ParsedSentence
		if err := json.Unmarshal([]byte(line), &rec); err != nil || len(rec.Tokens) == 0 {
			skipped++
			continue
		}
		s := NewSentence(rec.Tokens)
		text := rec.Text
		if text == "" {
			text = s.Text()
		}
		a.Add(text, s)
		loaded++
	}
	if err := sc.Err(); err != nil {
		return loaded, skipped, fmt.Errorf("failed to read parses: %w", err)
	}
	return loaded, skipped, nil
}

// LoadParsedFile is LoadParsed over a file path.
func (a *PrecomputedAnnotator) LoadParsedFile(path string) (loaded, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open parses: %w", err)
	}
	defer f.Close()
	return a.LoadParsed(f)
}
