package features

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

func TestEncodeFitsOnResolvedExamples(t *testing.T) {
	x := NewExtractor(nlptest.Annotator(seqList()))
	sentence := seqList().Text()

	set, skipped, err := x.Encode(context.Background(), []types.LabeledExample{
		{Sentence: sentence, Entity1: "顺序表", Entity2: "线性表", Label: types.LabelIsA},
		{Sentence: sentence, Entity1: "链表", Entity2: "线性表", Label: types.LabelNone},
		{Sentence: sentence, Entity1: "线性表", Entity2: "顺序表", Label: types.LabelNone},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{types.LabelIsA, types.LabelNone}, set.Y)
	require.Len(t, set.X, 2)

	v := set.Vectorizer
	require.NoError(t, v.Validate())
	for _, row := range set.X {
		assert.Len(t, row, v.Dim())
	}
	assert.Equal(t, 1.0, set.X[0][v.Vocabulary["e1_text=顺序表"]])
	assert.Equal(t, 0.0, set.X[1][v.Vocabulary["e1_text=顺序表"]])
	assert.Equal(t, 1.0, set.X[1][v.Vocabulary["e1_text=线性表"]])

	// the fitted space encodes inference records the same way
	rec, err := x.Extract(context.Background(), "顺序表", "线性表", sentence)
	require.NoError(t, err)
	assert.Equal(t, set.X[0], v.Transform(rec))
}

func TestEncodeEmptyAndFailing(t *testing.T) {
	set, skipped, err := NewExtractor(nlptest.Annotator()).Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, set.X)
	assert.NotNil(t, set.Y)

	boom := errors.New("parser down")
	_, _, err = NewExtractor(nlptest.Failing(boom)).Encode(context.Background(), []types.LabeledExample{
		{Sentence: "ab", Entity1: "a", Entity2: "b"},
	})
	assert.ErrorIs(t, err, boom)
}
