package nlp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"
)

// coordinators join coordinated noun phrases.
var coordinators = map[string]bool{
	"和": true, "与": true, "及": true, "以及": true, "或": true, "、": true, "跟": true, "同": true,
	"and": true, "or": true,
}

// GseAnnotator segments and tags text with gse (jieba dictionary) and builds
// a shallow dependency tree: the first verb or relation keyword is the root,
// the noun phrase before it is its subject, the noun phrase after it is its
// object, coordinated nouns hang off each other as conj and noun runs form
// compounds.
type GseAnnotator struct {
	mu       sync.Mutex
	seg      gse.Segmenter
	keywords []string
}

// GseOptions configures a GseAnnotator.
type GseOptions struct {
	// UserWords are registered as nouns so domain terms stay whole.
	UserWords []string
	// RootKeywords promote a token to sentence root even when the tagger
	// does not call it a verb.
	RootKeywords []string
}

// NewGseAnnotator loads the embedded gse dictionary and registers user words.
func NewGseAnnotator(opts GseOptions) (*GseAnnotator, error) {
	a := &GseAnnotator{keywords: opts.RootKeywords}
	if err := a.seg.LoadDict(); err != nil {
		return nil, fmt.Errorf("failed to load gse dictionary: %w", err)
	}
	for _, w := range opts.UserWords {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		a.seg.AddToken(w, 1000, "n")
	}
	return a, nil
}

// Annotate implements Annotator.
func (a *GseAnnotator) Annotate(ctx context.Context, text string) (*Sentence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	segs := a.seg.Pos(text, false)
	a.mu.Unlock()

	var tokens []*Token
	for _, sp := range segs {
		if strings.TrimSpace(sp.Text) == "" {
			if n := len(tokens); n > 0 {
				tokens[n-1].SpaceAfter = true
			}
			continue
		}
		tokens = append(tokens, &Token{Text: sp.Text, POS: universalPOS(sp.Text, sp.Pos)})
	}
	s := NewSentence(tokens)
	attachShallow(s, a.keywords)
	return s, nil
}

// universalPOS maps jieba-style tags onto universal POS tags.
func universalPOS(text, tag string) string {
	switch {
	case tag == "":
		if isPunct(text) {
			return PosPunct
		}
		return PosX
	case tag == "nr" || tag == "ns" || tag == "nt" || tag == "nz" || tag == "eng":
		return PosPropn
	case strings.HasPrefix(tag, "n"):
		return PosNoun
	case strings.HasPrefix(tag, "v"):
		return PosVerb
	case strings.HasPrefix(tag, "a"):
		return "ADJ"
	case strings.HasPrefix(tag, "d"):
		return "ADV"
	case tag == "m" || tag == "mq":
		return "NUM"
	case tag == "q":
		return "CLASSIFIER"
	case tag == "p":
		return "ADP"
	case tag == "c":
		return "CCONJ"
	case tag == "r":
		return "PRON"
	case strings.HasPrefix(tag, "u"):
		return "PART"
	case tag == "x" || tag == "w":
		if isPunct(text) {
			return PosPunct
		}
		return PosX
	}
	return PosX
}

func isPunct(text string) bool {
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return text != ""
}

func isNominal(t *Token) bool {
	return t.POS == PosNoun || t.POS == PosPropn
}

// phrase is a run of adjacent nominal tokens; head is the last token.
type phrase struct {
	start, end int
}

func (p phrase) head() int { return p.end - 1 }

// attachShallow assigns heads and dependency labels in place.
func attachShallow(s *Sentence, keywords []string) {
	if s.Len() == 0 {
		return
	}
	root := pickRoot(s, keywords)
	for _, t := range s.Tokens {
		t.Head = root
		t.Dep = DepDep
		if t.POS == PosPunct {
			t.Dep = DepPunct
		}
	}
	s.Tokens[root].Dep = DepRoot

	if base, ok := attachPhrases(s, 0, root); ok {
		s.Tokens[base].Dep = DepNsubj
		s.Tokens[base].Head = root
	}
	if base, ok := attachPhrases(s, root+1, s.Len()); ok {
		s.Tokens[base].Dep = DepObj
		s.Tokens[base].Head = root
	}
}

func pickRoot(s *Sentence, keywords []string) int {
	for _, t := range s.Tokens {
		if t.POS == PosVerb {
			return t.Index
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(t.Text, kw) && !isNominal(t) {
				return t.Index
			}
		}
	}
	for _, t := range s.Tokens {
		if isNominal(t) {
			return t.Index
		}
	}
	return 0
}

// attachPhrases links the noun phrases of tokens[from:to] and returns the
// index of the phrase that should attach to the root.
func attachPhrases(s *Sentence, from, to int) (int, bool) {
	var phrases []phrase
	for i := from; i < to; {
		if !isNominal(s.Tokens[i]) {
			i++
			continue
		}
		j := i
		for j < to && isNominal(s.Tokens[j]) {
			j++
		}
		phrases = append(phrases, phrase{start: i, end: j})
		i = j
	}
	if len(phrases) == 0 {
		return 0, false
	}

	for _, p := range phrases {
		for i := p.start; i < p.head(); i++ {
			s.Tokens[i].Head = p.head()
			s.Tokens[i].Dep = DepCompound
		}
	}

	base := phrases[0].head()
	prev := base
	for k := 1; k < len(phrases); k++ {
		cur := phrases[k].head()
		if coordinated(s, phrases[k-1].end, phrases[k].start) {
			s.Tokens[cur].Head = prev
			s.Tokens[cur].Dep = DepConj
			prev = cur
			continue
		}
		// A preceding phrase not joined by a coordinator modifies the next one.
		s.Tokens[base].Head = cur
		s.Tokens[base].Dep = "nmod"
		base, prev = cur, cur
	}
	return base, true
}

func coordinated(s *Sentence, from, to int) bool {
	if from >= to {
		return false
	}
	for i := from; i < to; i++ {
		if coordinators[strings.ToLower(s.Tokens[i].Text)] {
			return true
		}
	}
	return false
}
