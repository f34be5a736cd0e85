package relations

import (
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

// KeywordClass is a relation label and the surface forms that signal it.
type KeywordClass struct {
	Label    string
	Keywords []string
}

// DefaultKeywords is the relation keyword table in lookup order. A token
// takes the label of the first class with a keyword contained in its text.
var DefaultKeywords = []KeywordClass{
	{types.LabelContains, []string{"包括", "包含", "分为", "组成", "构成", "由", "涵盖"}},
	{types.LabelIsA, []string{"是", "属于", "是一种", "遵循", "归为"}},
	{types.LabelImplementBy, []string{"实现", "采用", "使用", "基于"}},
	{types.LabelAppliedIn, []string{"应用", "用于", "场景"}},
}

var (
	subjectDeps  = depSet("nsubj", "top", "nsubj:pass")
	objectDeps   = depSet("obj", "attr", "range", "dobj")
	modifierDeps = depSet("nmod:assmod", "nmod", "amod", "compound")
)

func depSet(deps ...string) map[string]bool {
	m := make(map[string]bool, len(deps))
	for _, d := range deps {
		m[d] = true
	}
	return m
}

// Rules extracts relations with a dependency pattern and a keyword window.
// It is the only producer of training labels.
type Rules struct {
	keywords []KeywordClass
}

// NewRules creates a rule engine. A nil table selects DefaultKeywords.
func NewRules(keywords []KeywordClass) *Rules {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	return &Rules{keywords: keywords}
}

// RelationType returns the label signalled by word, or "".
func (r *Rules) RelationType(word string) string {
	for _, c := range r.keywords {
		for _, k := range c.Keywords {
			if strings.Contains(word, k) {
				return c.Label
			}
		}
	}
	return ""
}

// ExtractByRules returns the union of the dependency and keyword-window
// rules over s, deduplicated in first-seen order. When known is non-empty
// both ends of every triple are members of it.
func (r *Rules) ExtractByRules(s *nlp.Sentence, known []string) []types.Triple {
	set := newTripleSet()
	r.dependencyRule(s, toSet(known), set)
	if len(known) > 0 {
		r.windowRule(s.Text(), known, set)
	}
	return set.triples
}

func (r *Rules) dependencyRule(s *nlp.Sentence, known map[string]bool, out *tripleSet) {
	for _, tok := range s.Tokens {
		rel := r.RelationType(tok.Text)
		if rel == "" {
			// verbs without a keyword carry no label either
			continue
		}

		var subjects, objects []*nlp.Token
		for _, c := range s.Children(tok) {
			switch {
			case subjectDeps[c.Dep]:
				subjects = append(subjects, c)
				subjects = appendConjuncts(s, c, subjects)
			case objectDeps[c.Dep]:
				objects = append(objects, c)
				objects = appendConjuncts(s, c, objects)
				objects = appendModifiers(s, c, objects)
			}
		}

		for _, sub := range subjects {
			for _, obj := range objects {
				if sub == obj {
					continue
				}
				if len(known) > 0 && (!known[sub.Text] || !known[obj.Text]) {
					continue
				}
				out.add(types.Triple{Source: sub.Text, Target: obj.Text, Type: rel})
			}
		}
	}
}

// windowRule emits (s, o, label) when s, a keyword and o appear in that
// order in text.
func (r *Rules) windowRule(text string, known []string, out *tripleSet) {
	present := make([]string, 0, len(known))
	for _, e := range known {
		if e != "" && strings.Contains(text, e) {
			present = append(present, e)
		}
	}
	for _, c := range r.keywords {
		for _, kw := range c.Keywords {
			for _, se := range present {
				for _, oe := range present {
					if se == oe {
						continue
					}
					if inOrder(text, se, kw, oe) {
						out.add(types.Triple{Source: se, Target: oe, Type: c.Label})
					}
				}
			}
		}
	}
}

// inOrder reports whether parts occur in text left to right without
// overlapping. It matches the regexp a.*?b.*?c built from the quoted parts:
// taking the earliest occurrence of each part in turn is sufficient.
func inOrder(text string, parts ...string) bool {
	pos := 0
	for _, p := range parts {
		i := strings.Index(text[pos:], p)
		if i < 0 {
			return false
		}
		pos += i + len(p)
	}
	return true
}

// appendConjuncts follows conj edges from t transitively.
func appendConjuncts(s *nlp.Sentence, t *nlp.Token, out []*nlp.Token) []*nlp.Token {
	return walk(s, t, out, func(c *nlp.Token) bool { return c.Dep == nlp.DepConj })
}

// appendModifiers follows modifier edges from t transitively.
func appendModifiers(s *nlp.Sentence, t *nlp.Token, out []*nlp.Token) []*nlp.Token {
	return walk(s, t, out, func(c *nlp.Token) bool { return modifierDeps[c.Dep] })
}

func walk(s *nlp.Sentence, t *nlp.Token, out []*nlp.Token, follow func(*nlp.Token) bool) []*nlp.Token {
	seen := map[*nlp.Token]bool{t: true}
	stack := []*nlp.Token{t}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		children := s.Children(cur)
		// push in reverse so children are visited in sentence order
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if seen[c] || !follow(c) {
				continue
			}
			seen[c] = true
			stack = append(stack, c)
		}
		if cur != t {
			out = append(out, cur)
		}
	}
	return out
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// tripleSet keeps distinct triples in insertion order and drops self-loops.
type tripleSet struct {
	seen    map[types.TripleKey]bool
	triples []types.Triple
}

func newTripleSet() *tripleSet {
	return &tripleSet{seen: make(map[types.TripleKey]bool)}
}

func (ts *tripleSet) add(t types.Triple) {
	if t.Source == t.Target {
		return
	}
	k := t.Key()
	if ts.seen[k] {
		return
	}
	ts.seen[k] = true
	ts.triples = append(ts.triples, t)
}
