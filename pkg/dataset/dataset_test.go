package dataset

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/soundprediction/go-kgextract/pkg/entities"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/soundprediction/go-kgextract/pkg/types"
	"github.com/soundprediction/go-kgextract/pkg/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(terms []string, sentences ...*nlp.Sentence) *Builder {
	return NewBuilder(
		nlptest.Annotator(sentences...),
		entities.NewExtractor(vocab.New(terms), nil),
		nil, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestBuildPositiveAndNegative(t *testing.T) {
	s := nlptest.Sentence(true,
		"栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
	b := newTestBuilder([]string{"栈", "数组"}, s)

	doc := "# 第三章 栈\n栈 使用 数组 实现。\n"
	got, err := b.Build(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	sent := "栈 使用 数组 实现"
	assert.Equal(t, []types.LabeledExample{
		{Sentence: sent, Entity1: "栈", Entity2: "数组", Label: types.LabelImplementBy},
		{Sentence: sent, Entity1: "数组", Entity2: "栈", Label: types.LabelNone},
	}, got)
}

func TestBuildNegativeSampling(t *testing.T) {
	s := nlptest.Sentence(true,
		"栈|NOUN|ROOT|0",
		"和|CCONJ|cc|2",
		"队列|NOUN|conj|0",
	)
	b := newTestBuilder([]string{"栈", "队列"}, s)

	got, err := b.Build(context.Background(), strings.NewReader("栈 和 队列。"))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Contains(t, got, types.LabeledExample{Sentence: "栈 和 队列", Entity1: "栈", Entity2: "队列", Label: types.LabelNone})
	assert.Contains(t, got, types.LabeledExample{Sentence: "栈 和 队列", Entity1: "队列", Entity2: "栈", Label: types.LabelNone})
}

func TestBuildSkipsSingleEntitySentences(t *testing.T) {
	s := nlptest.Sentence(true,
		"栈|NOUN|nsubj|1",
		"很|ADV|advmod|2",
		"常用|VERB|ROOT|2",
	)
	b := newTestBuilder([]string{"栈"}, s)

	got, err := b.Build(context.Background(), strings.NewReader("\n栈 很 常用。\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// The negative-pair guard checks the sentence text, so an entity that also
// sits inside a longer merged term still counts as present.
func TestNegativeSamplingUsesLiteralSubstring(t *testing.T) {
	s := nlptest.Sentence(true,
		"顺序栈|NOUN|nsubj|3",
		"和|CCONJ|cc|2",
		"栈|NOUN|conj|0",
		"不同|VERB|ROOT|3",
	)
	b := newTestBuilder([]string{"顺序栈", "栈"}, s)

	got, err := b.Build(context.Background(), strings.NewReader("顺序栈 和 栈 不同。"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []types.LabeledExample{
		{Sentence: "顺序栈 和 栈 不同", Entity1: "顺序栈", Entity2: "栈", Label: types.LabelNone},
		{Sentence: "顺序栈 和 栈 不同", Entity1: "栈", Entity2: "顺序栈", Label: types.LabelNone},
	}, got)
}

func TestArbitrateOrderIndependent(t *testing.T) {
	contains := types.LabeledExample{Sentence: "A 是 B", Entity1: "A", Entity2: "B", Label: types.LabelContains}
	isA := contains
	isA.Label = types.LabelIsA
	none := contains
	none.Label = types.LabelNone

	orders := [][]types.LabeledExample{
		{contains, isA},
		{isA, contains},
		{none, contains, isA},
		{isA, none, contains},
	}
	for _, in := range orders {
		got := Arbitrate(in)
		require.Len(t, got, 1)
		assert.Equal(t, types.LabelIsA, got[0].Label)
	}
}

func TestArbitrateKeepsFirstSeenOrder(t *testing.T) {
	in := []types.LabeledExample{
		{Sentence: "s", Entity1: "B", Entity2: "A", Label: types.LabelNone},
		{Sentence: "s", Entity1: "A", Entity2: "B", Label: types.LabelContains},
		{Sentence: "s", Entity1: "B", Entity2: "A", Label: types.LabelAppliedIn},
		{Sentence: "s", Entity1: "x", Entity2: "y", Label: "unknown"},
		{Sentence: "s", Entity1: "x", Entity2: "y", Label: "another"},
	}
	got := Arbitrate(in)
	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].Entity1)
	assert.Equal(t, types.LabelAppliedIn, got[0].Label)
	assert.Equal(t, types.LabelContains, got[1].Label)
	assert.Equal(t, "another", got[2].Label)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []types.LabeledExample{
		{Sentence: "A<B", Entity1: "A", Entity2: "B", Label: types.LabelIsA},
	}))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\n  {\n"))
	assert.Contains(t, out, `"label": "属于"`)
	assert.Contains(t, out, `"sentence": "A<B"`)

	back, err := Read(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "A<B", back[0].Sentence)

	_, err = Read(strings.NewReader(`{"sentence": 1}`))
	assert.Error(t, err)

	buf.Reset()
	require.NoError(t, Write(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
