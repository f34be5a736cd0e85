// Package features encodes an ordered entity pair within a sentence as a
// flat feature record. The same encoding feeds classifier training and
// inference.
package features

import (
	"context"
	"fmt"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
)

// Feature names.
const (
	E1Text       = "e1_text"
	E2Text       = "e2_text"
	E1POS        = "e1_pos"
	E2POS        = "e2_pos"
	TokenDist    = "token_distance"
	IsAdjacent   = "is_adjacent"
	LCAPOS       = "lca_pos"
	LCAText      = "lca_text"
	DistToLCA1   = "dist_to_lca_1"
	DistToLCA2   = "dist_to_lca_2"
	HasInclude   = "has_include"
	HasIs        = "has_is"
	HasImplement = "has_implement"
)

// Keyword classes tested in the window between the two entities.
var (
	IncludeWords   = []string{"包括", "包含", "分为"}
	IsWords        = []string{"是", "属于", "是一种"}
	ImplementWords = []string{"实现", "采用"}
)

// Record maps feature names to string, bool or int values. An empty record
// means no features are available for the pair.
type Record map[string]interface{}

// Extractor computes feature records.
type Extractor struct {
	annotator nlp.Annotator
}

// NewExtractor creates an extractor that re-annotates sentences with a.
func NewExtractor(a nlp.Annotator) *Extractor {
	return &Extractor{annotator: a}
}

// Extract annotates sentence, merges the spans of e1 and e2 and describes
// their syntactic relationship. It returns an empty record when either
// entity does not resolve to a single token.
func (x *Extractor) Extract(ctx context.Context, e1, e2, sentence string) (Record, error) {
	s, err := x.annotator.Annotate(ctx, sentence)
	if err != nil {
		return nil, fmt.Errorf("failed to annotate sentence: %w", err)
	}
	return FromSentence(e1, e2, s), nil
}

// FromSentence is Extract over an already annotated sentence. s is not
// modified.
func FromSentence(e1, e2 string, s *nlp.Sentence) Record {
	doc := s.Merge(s.FindSpans(e1, e2))

	var t1, t2 *nlp.Token
	for _, t := range doc.Tokens {
		if t.Text == e1 {
			t1 = t
		}
		if t.Text == e2 {
			t2 = t
		}
	}
	if t1 == nil || t2 == nil {
		return Record{}
	}

	dist := abs(t1.Index - t2.Index)
	rec := Record{
		E1Text:     e1,
		E2Text:     e2,
		E1POS:      t1.POS,
		E2POS:      t2.POS,
		TokenDist:  dist,
		IsAdjacent: dist == 1,
	}

	if lca := LCA(doc, t1, t2); lca != nil {
		rec[LCAPOS] = lca.POS
		rec[LCAText] = lca.Text
		rec[DistToLCA1] = DepDistance(doc, t1, lca)
		rec[DistToLCA2] = DepDistance(doc, t2, lca)
	}

	lo, hi := t1.Index, t2.Index
	if lo > hi {
		lo, hi = hi, lo
	}
	between := doc.Tokens[lo+1 : hi]
	rec[HasInclude] = anyText(between, IncludeWords)
	rec[HasIs] = anyText(between, IsWords)
	rec[HasImplement] = anyText(between, ImplementWords)
	return rec
}

// LCA returns the lowest common ancestor of a and b (each token counts as
// its own ancestor), or nil when their head chains never meet.
func LCA(s *nlp.Sentence, a, b *nlp.Token) *nlp.Token {
	chain := map[*nlp.Token]bool{a: true}
	for _, t := range s.Ancestors(a) {
		chain[t] = true
	}
	if chain[b] {
		return b
	}
	for _, t := range s.Ancestors(b) {
		if chain[t] {
			return t
		}
	}
	return nil
}

// DepDistance counts head hops from t towards ancestor. The walk stops at a
// self-headed token and is capped by the sentence length.
func DepDistance(s *nlp.Sentence, t, ancestor *nlp.Token) int {
	dist := 0
	cur := t
	for range s.Tokens {
		if cur == ancestor {
			break
		}
		head := s.HeadOf(cur)
		if head == cur {
			break
		}
		cur = head
		dist++
	}
	return dist
}

func anyText(tokens []*nlp.Token, words []string) bool {
	for _, t := range tokens {
		for _, w := range words {
			if t.Text == w {
				return true
			}
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
