// Package nlptest builds hand-parsed sentences for tests.
package nlptest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
)

// Sentence builds a sentence from "text|POS|dep|head" descriptions. When spaced is
// true every token but the last is followed by a space.
func Sentence(spaced bool, descs ...string) *nlp.Sentence {
	tokens := make([]*nlp.Token, len(descs))
	for i, desc := range descs {
		parts := strings.Split(desc, "|")
		if len(parts) != 4 {
			panic(fmt.Sprintf("nlptest: bad token description %q", desc))
		}
		head, err := strconv.Atoi(parts[3])
		if err != nil {
			panic(fmt.Sprintf("nlptest: bad head in %q", desc))
		}
		tokens[i] = &nlp.Token{
			Text:       parts[0],
			POS:        parts[1],
			Dep:        parts[2],
			Head:       head,
			SpaceAfter: spaced && i < len(descs)-1,
		}
	}
	return nlp.NewSentence(tokens)
}

// Annotator returns a precomputed annotator serving the given sentences
// under their own surface text.
func Annotator(sentences ...*nlp.Sentence) *nlp.PrecomputedAnnotator {
	a := nlp.NewPrecomputedAnnotator(nil)
	for _, s := range sentences {
		a.Add(s.Text(), s)
	}
	return a
}

// Failing is an annotator that always returns err.
func Failing(err error) nlp.Annotator {
	return nlp.AnnotatorFunc(func(context.Context, string) (*nlp.Sentence, error) {
		return nil, err
	})
}
