// Package entities recognizes candidate entity mentions in annotated
// sentences.
package entities

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/vocab"
)

// DefaultStopFragments are bound morphemes that the tagger calls nouns but
// that never stand alone as domain terms.
var DefaultStopFragments = []string{
	"性表", "表是", "列是", "之一", "方式", "实现", "节点", "元素",
	"操作", "应用", "场景", "内容", "策略", "解决", "冲突",
}

// Extractor turns annotated sentences into entity mentions.
type Extractor struct {
	vocab *vocab.Vocabulary
	stop  map[string]bool
}

// NewExtractor creates an extractor. A nil or empty vocabulary yields
// POS-only extraction; nil stop fragments select DefaultStopFragments.
func NewExtractor(v *vocab.Vocabulary, stopFragments []string) *Extractor {
	if v == nil {
		v = vocab.New(nil)
	}
	if stopFragments == nil {
		stopFragments = DefaultStopFragments
	}
	stop := make(map[string]bool, len(stopFragments))
	for _, f := range stopFragments {
		stop[f] = true
	}
	return &Extractor{vocab: v, stop: stop}
}

// Vocabulary returns the vocabulary the extractor matches against.
func (e *Extractor) Vocabulary() *vocab.Vocabulary {
	return e.vocab
}

// Spans returns the vocabulary spans of s that should be merged into single
// tokens before relation extraction.
func (e *Extractor) Spans(s *nlp.Sentence) []nlp.Span {
	return e.vocab.Match(s)
}

// MergeTerms returns s with every vocabulary span collapsed into one token.
func (e *Extractor) MergeTerms(s *nlp.Sentence) *nlp.Sentence {
	return s.Merge(e.Spans(s))
}

// Extract returns the entity mentions of s, longest first. The result is
// deterministic for identical input.
func (e *Extractor) Extract(s *nlp.Sentence) []string {
	if s.Len() == 0 {
		return nil
	}

	var candidates []string
	seen := make(map[string]bool)
	add := func(text string) {
		if text != "" && !seen[text] {
			seen[text] = true
			candidates = append(candidates, text)
		}
	}

	for _, sp := range e.vocab.Match(s) {
		add(s.SpanText(sp))
	}
	for _, t := range s.Tokens {
		if (t.POS == nlp.PosNoun || t.POS == nlp.PosPropn) &&
			utf8.RuneCountInString(t.Text) > 1 && !e.stop[t.Text] {
			add(t.Text)
		}
	}

	// longest first, first-seen order among equal lengths
	sort.SliceStable(candidates, func(i, j int) bool {
		return utf8.RuneCountInString(candidates[i]) > utf8.RuneCountInString(candidates[j])
	})

	var kept []string
	for _, c := range candidates {
		if e.suppressed(c, kept) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// suppressed applies longest-match disambiguation: vocabulary terms always
// survive; anything else is dropped when a kept longer mention contains it
// or when it is a fragment of a vocabulary term.
func (e *Extractor) suppressed(c string, kept []string) bool {
	if e.vocab.Contains(c) {
		return false
	}
	for _, k := range kept {
		if strings.Contains(k, c) {
			return true
		}
	}
	return e.vocab.IsPartOfTerm(c)
}
