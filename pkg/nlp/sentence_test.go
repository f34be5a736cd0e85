package nlp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/soundprediction/go-kgextract/pkg/cache"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// "Linked List is a list": Linked -> List (compound), List -> is (nsubj),
// a -> list (det), list -> is (attr), is is root.
func linkedList() *nlp.Sentence {
	return nlptest.Sentence(true,
		"Linked|PROPN|compound|1",
		"List|PROPN|nsubj|2",
		"is|AUX|ROOT|2",
		"a|DET|det|4",
		"list|NOUN|attr|2",
	)
}

func TestSentenceText(t *testing.T) {
	assert.Equal(t, "Linked List is a list", linkedList().Text())

	zh := nlptest.Sentence(false, "栈|NOUN|nsubj|1", "使用|VERB|ROOT|1", "数组|NOUN|obj|1")
	assert.Equal(t, "栈使用数组", zh.Text())
}

func TestSentenceNavigation(t *testing.T) {
	s := linkedList()
	is := s.Tokens[2]

	assert.Same(t, is, s.HeadOf(is))
	children := s.Children(is)
	require.Len(t, children, 2)
	assert.Equal(t, "List", children[0].Text)
	assert.Equal(t, "list", children[1].Text)

	anc := s.Ancestors(s.Tokens[0])
	require.Len(t, anc, 2)
	assert.Equal(t, "List", anc[0].Text)
	assert.Equal(t, "is", anc[1].Text)
}

func TestAncestorsTerminateOnCycles(t *testing.T) {
	// 0 -> 1 -> 0 never reaches a self-headed token.
	s := nlptest.Sentence(false, "甲|NOUN|dep|1", "乙|NOUN|dep|0")
	anc := s.Ancestors(s.Tokens[0])
	assert.LessOrEqual(t, len(anc), s.Len())
}

func TestFilterSpans(t *testing.T) {
	spans := []nlp.Span{{Start: 0, End: 1}, {Start: 0, End: 2}, {Start: 1, End: 3}, {Start: 3, End: 4}}
	got := nlp.FilterSpans(spans)
	assert.Equal(t, []nlp.Span{{Start: 0, End: 2}, {Start: 3, End: 4}}, got)
}

func TestMergeCollapsesSpanIntoRoot(t *testing.T) {
	s := linkedList()
	merged := s.Merge(s.FindSpans("Linked List"))

	require.Equal(t, 4, merged.Len())
	ll := merged.Tokens[0]
	assert.Equal(t, "Linked List", ll.Text)
	assert.Equal(t, "nsubj", ll.Dep)
	assert.Equal(t, "PROPN", ll.POS)
	assert.Same(t, merged.Tokens[1], merged.HeadOf(ll))
	assert.Equal(t, "Linked List is a list", merged.Text())

	// the original sentence is untouched
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 3, merged.Tokens[2].Head)
	assert.Equal(t, 1, merged.Tokens[3].Head)
}

func TestMergeReattachesInternalChildren(t *testing.T) {
	// 顺序 -> 表 (compound), 表 -> 是 (nsubj), 的 -> 表
	s := nlptest.Sentence(false,
		"顺序|NOUN|compound|1",
		"表|NOUN|nsubj|2",
		"是|VERB|ROOT|2",
		"线性|ADJ|amod|4",
		"表|NOUN|attr|2",
	)
	merged := s.Merge(s.FindSpans("顺序表"))
	require.Equal(t, 4, merged.Len())
	assert.Equal(t, "顺序表", merged.Tokens[0].Text)
	assert.Equal(t, 1, merged.Tokens[0].Head)
	assert.Equal(t, 3, merged.Tokens[2].Head)
	assert.Equal(t, 1, merged.Tokens[1].Head)
}

func TestPreprocessor(t *testing.T) {
	p := nlp.NewPreprocessor(nil)

	assert.Equal(t, "栈 支持 入栈 和 出栈", p.Clean("栈  支持 PUSH 和 pop"))
	assert.Equal(t, "队列遵循 先进先出 原则", p.Clean("队列遵循 FIFO 原则[12]"))
	assert.Equal(t, "栈 支持 入栈", p.Clean("栈\u3000\u3000支持 \u3000push"))

	got := p.Sentences("栈是一种线性表。它遵循后进先出原则！a。")
	assert.Equal(t, []string{"栈是一种线性表", "它遵循后进先出原则"}, got)
}

func TestHeadingDetection(t *testing.T) {
	tests := []struct {
		line    string
		heading bool
		topic   string
	}{
		{"# 线性表", true, "线性表"},
		{"## 栈 与 队列", true, "栈与队列"},
		{"第三章 树", true, "树"},
		{"第12章", true, ""},
		{"#\u3000第一章\u3000栈", true, "栈"},
		{"第三章\u3000栈 与\u3000队列", true, "栈与队列"},
		{"栈是一种线性表", false, "栈是一种线性表"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.heading, nlp.IsHeading(tt.line))
			if tt.heading {
				assert.Equal(t, tt.topic, nlp.HeadingTopic(tt.line))
			}
		})
	}
}

func TestPrecomputedAnnotator(t *testing.T) {
	ctx := context.Background()
	input := strings.Join([]string{
		`{"text":"栈使用数组","tokens":[{"text":"栈","pos":"NOUN","dep":"nsubj","head":1},{"text":"使用","pos":"VERB","dep":"ROOT","head":1},{"text":"数组","pos":"NOUN","dep":"obj","head":1}]}`,
		`not json`,
		``,
	}, "\n")

	a := nlp.NewPrecomputedAnnotator(nil)
	loaded, skipped, err := a.LoadParsed(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, skipped)

	s, err := a.Annotate(ctx, "栈使用数组")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	// mutations of a returned parse do not leak into later lookups
	s.Tokens[0].Text = "changed"
	again, err := a.Annotate(ctx, "栈使用数组")
	require.NoError(t, err)
	assert.Equal(t, "栈", again.Tokens[0].Text)

	_, err = a.Annotate(ctx, "未知句子")
	assert.ErrorIs(t, err, nlp.ErrNotAnnotated)
}

func TestCachedAnnotator(t *testing.T) {
	ctx := context.Background()
	c, err := cache.NewMemoryCache("ann:")
	require.NoError(t, err)
	defer c.Close()

	calls := 0
	inner := nlp.AnnotatorFunc(func(ctx context.Context, text string) (*nlp.Sentence, error) {
		calls++
		return nlptest.Sentence(false, "栈|NOUN|ROOT|0"), nil
	})
	a := nlp.NewCachedAnnotator(inner, c, nil)

	for i := 0; i < 3; i++ {
		s, err := a.Annotate(ctx, "栈")
		require.NoError(t, err)
		assert.Equal(t, "栈", s.Text())
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Set("坏", []byte("{broken"), 0))
	_, err = a.Annotate(ctx, "坏")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
