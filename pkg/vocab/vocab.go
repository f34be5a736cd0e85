// Package vocab loads the domain vocabulary and matches its terms against
// annotated sentences.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
)

// ErrNotFound is returned when the vocabulary file does not exist. Callers
// treat it as a reduced-capability mode, not a failure.
var ErrNotFound = errors.New("vocabulary file not found")

// Vocabulary is an immutable set of canonical domain terms.
type Vocabulary struct {
	terms []string
	set   map[string]bool
	// maxLen is the longest term in bytes, bounding span matching.
	maxLen int
}

// New builds a vocabulary from terms, dropping blanks and duplicates.
func New(terms []string) *Vocabulary {
	v := &Vocabulary{set: make(map[string]bool)}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || v.set[t] {
			continue
		}
		v.set[t] = true
		v.terms = append(v.terms, t)
		if len(t) > v.maxLen {
			v.maxLen = len(t)
		}
	}
	return v
}

// Read parses newline-delimited terms; lines starting with '#' are comments.
func Read(r io.Reader) (*Vocabulary, error) {
	var terms []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return New(terms), nil
}

// Load reads the vocabulary at path. A missing file yields an empty
// vocabulary together with ErrNotFound.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(nil), fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Len returns the number of terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// Terms returns the terms in load order.
func (v *Vocabulary) Terms() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Contains reports whether s is a vocabulary term.
func (v *Vocabulary) Contains(s string) bool {
	return v != nil && v.set[s]
}

// IsPartOfTerm reports whether s is a strict substring of some term.
func (v *Vocabulary) IsPartOfTerm(s string) bool {
	if v == nil || s == "" {
		return false
	}
	for _, t := range v.terms {
		if t != s && strings.Contains(t, s) {
			return true
		}
	}
	return false
}

// Spans returns every token span of s whose surface text is a term.
// Overlaps are not resolved; see nlp.FilterSpans.
func (v *Vocabulary) Spans(s *nlp.Sentence) []nlp.Span {
	if v.Len() == 0 || s.Len() == 0 {
		return nil
	}
	var spans []nlp.Span
	for i := range s.Tokens {
		for j := i + 1; j <= s.Len(); j++ {
			text := s.SpanText(nlp.Span{Start: i, End: j})
			if len(text) > v.maxLen {
				break
			}
			if v.set[text] {
				spans = append(spans, nlp.Span{Start: i, End: j})
			}
		}
	}
	return spans
}

// Match returns the longest non-overlapping term spans of s, earliest
// start first on ties.
func (v *Vocabulary) Match(s *nlp.Sentence) []nlp.Span {
	return nlp.FilterSpans(v.Spans(s))
}
