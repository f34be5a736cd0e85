package nlp

import (
	"sort"
	"strings"
)

// Universal dependency / part-of-speech labels the extractors look at.
const (
	PosNoun  = "NOUN"
	PosPropn = "PROPN"
	PosVerb  = "VERB"
	PosPunct = "PUNCT"
	PosX     = "X"

	DepRoot     = "ROOT"
	DepNsubj    = "nsubj"
	DepObj      = "obj"
	DepConj     = "conj"
	DepCompound = "compound"
	DepPunct    = "punct"
	DepDep      = "dep"
)

// Token is one word of an annotated sentence. Head is the index of the
// governing token; the root of a tree is its own head.
type Token struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	POS        string `json:"pos"`
	Dep        string `json:"dep"`
	Head       int    `json:"head"`
	SpaceAfter bool   `json:"space_after,omitempty"`
}

// Sentence is an ordered token sequence forming a dependency tree.
type Sentence struct {
	Tokens []*Token `json:"tokens"`
}

// Span is a half-open token range [Start, End).
type Span struct {
	Start int
	End   int
}

// Len returns the number of tokens covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// NewSentence builds a sentence from already indexed tokens and fixes up
// indices so they match slice positions.
func NewSentence(tokens []*Token) *Sentence {
	for i, t := range tokens {
		t.Index = i
	}
	return &Sentence{Tokens: tokens}
}

// Len returns the number of tokens.
func (s *Sentence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tokens)
}

// Text reconstructs the surface text of the sentence.
func (s *Sentence) Text() string {
	if s == nil {
		return ""
	}
	return s.SpanText(Span{Start: 0, End: len(s.Tokens)})
}

// SpanText reconstructs the surface text covered by span.
func (s *Sentence) SpanText(span Span) string {
	var b strings.Builder
	for i := span.Start; i < span.End; i++ {
		t := s.Tokens[i]
		b.WriteString(t.Text)
		if t.SpaceAfter && i < span.End-1 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// HeadOf returns the governing token of t. A token whose head index is out
// of range is treated as its own head.
func (s *Sentence) HeadOf(t *Token) *Token {
	if t.Head < 0 || t.Head >= len(s.Tokens) {
		return t
	}
	return s.Tokens[t.Head]
}

// Children returns the tokens governed by t in sentence order.
func (s *Sentence) Children(t *Token) []*Token {
	var out []*Token
	for _, c := range s.Tokens {
		if c != t && c.Head == t.Index {
			out = append(out, c)
		}
	}
	return out
}

// Ancestors returns the head chain of t, nearest first. The walk stops at a
// self-headed token and never visits more tokens than the sentence holds, so
// malformed cyclic trees terminate.
func (s *Sentence) Ancestors(t *Token) []*Token {
	var out []*Token
	cur := t
	for range s.Tokens {
		head := s.HeadOf(cur)
		if head == cur {
			break
		}
		out = append(out, head)
		cur = head
	}
	return out
}

// Clone returns a deep copy of the sentence.
func (s *Sentence) Clone() *Sentence {
	tokens := make([]*Token, len(s.Tokens))
	for i, t := range s.Tokens {
		c := *t
		tokens[i] = &c
	}
	return &Sentence{Tokens: tokens}
}

// FilterSpans keeps the longest non-overlapping spans. Ties are broken by the
// earliest start. The result is sorted by start.
func FilterSpans(spans []Span) []Span {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Len() != sorted[j].Len() {
			return sorted[i].Len() > sorted[j].Len()
		}
		return sorted[i].Start < sorted[j].Start
	})

	var kept []Span
	taken := make(map[int]bool)
	for _, sp := range sorted {
		if sp.Len() <= 0 {
			continue
		}
		overlap := false
		for i := sp.Start; i < sp.End; i++ {
			if taken[i] {
				overlap = true
				break
			}
		}
		if overlap {
			continue
		}
		for i := sp.Start; i < sp.End; i++ {
			taken[i] = true
		}
		kept = append(kept, sp)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// Merge returns a copy of the sentence in which every span is collapsed into
// a single token. Spans are filtered with FilterSpans first. The merged token
// takes the text of the span and the POS, dependency label and head of the
// span root (the token whose head lies outside the span); tokens that were
// governed from inside the span are re-attached to the merged token.
func (s *Sentence) Merge(spans []Span) *Sentence {
	spans = FilterSpans(spans)
	if len(spans) == 0 {
		return s.Clone()
	}

	// newIndex maps every old token index to its index after merging.
	newIndex := make([]int, len(s.Tokens))
	spanAt := make(map[int]Span)
	for _, sp := range spans {
		spanAt[sp.Start] = sp
	}

	var out []*Token
	for i := 0; i < len(s.Tokens); {
		if sp, ok := spanAt[i]; ok {
			root := s.spanRoot(sp)
			last := s.Tokens[sp.End-1]
			merged := &Token{
				Text:       s.SpanText(sp),
				POS:        root.POS,
				Dep:        root.Dep,
				Head:       root.Head,
				SpaceAfter: last.SpaceAfter,
			}
			for j := sp.Start; j < sp.End; j++ {
				newIndex[j] = len(out)
			}
			out = append(out, merged)
			i = sp.End
			continue
		}
		c := *s.Tokens[i]
		newIndex[i] = len(out)
		out = append(out, &c)
		i++
	}

	for _, t := range out {
		if t.Head >= 0 && t.Head < len(newIndex) {
			t.Head = newIndex[t.Head]
		}
	}
	return NewSentence(out)
}

// spanRoot returns the first token of the span whose head lies outside it,
// falling back to the last token for fully internal (cyclic) spans.
func (s *Sentence) spanRoot(sp Span) *Token {
	for i := sp.Start; i < sp.End; i++ {
		t := s.Tokens[i]
		if t.Head < sp.Start || t.Head >= sp.End || t.Head == t.Index {
			return t
		}
	}
	return s.Tokens[sp.End-1]
}

// FindSpans returns every token span whose surface text equals one of the
// given strings.
func (s *Sentence) FindSpans(texts ...string) []Span {
	want := make(map[string]bool, len(texts))
	for _, t := range texts {
		if t != "" {
			want[t] = true
		}
	}
	var spans []Span
	for i := range s.Tokens {
		for j := i + 1; j <= len(s.Tokens); j++ {
			if want[s.SpanText(Span{Start: i, End: j})] {
				spans = append(spans, Span{Start: i, End: j})
			}
		}
	}
	return spans
}
