package kgextract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/soundprediction/go-kgextract/pkg/entities"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/soundprediction/go-kgextract/pkg/types"
	"github.com/soundprediction/go-kgextract/pkg/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, terms []string, seed []*types.Entity, sentences ...*nlp.Sentence) *Pipeline {
	t.Helper()
	p, err := NewPipeline(
		nlptest.Annotator(sentences...),
		entities.NewExtractor(vocab.New(terms), nil),
		nil,
		&Config{Workers: 4, Seed: seed, Logger: quietLogger()},
	)
	require.NoError(t, err)
	return p
}

func byName(g *types.Graph) map[string]*types.Entity {
	m := make(map[string]*types.Entity, len(g.Entities))
	for _, e := range g.Entities {
		m[e.Name] = e
	}
	return m
}

type edge struct{ source, target, typ string }

func edges(g *types.Graph) []edge {
	names := make(map[int64]string, len(g.Entities))
	for _, e := range g.Entities {
		names[e.ID] = e.Name
	}
	var out []edge
	for _, r := range g.Relations {
		out = append(out, edge{names[r.SourceID], names[r.TargetID], r.Type})
	}
	return out
}

// 栈 使用 数组 实现
func stackUsesArray() *nlp.Sentence {
	return nlptest.Sentence(true,
		"栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
}

func TestRunStackUsesArray(t *testing.T) {
	p := newTestPipeline(t, []string{"栈", "数组"}, nil, stackUsesArray())

	a, err := p.Analyze(context.Background(), strings.NewReader("栈 使用 数组 实现。\n"))
	require.NoError(t, err)

	require.Len(t, a.Sentences, 1)
	assert.ElementsMatch(t, []string{"栈", "数组"}, a.Sentences[0].Entities)
	assert.Equal(t, []edge{{"栈", "数组", types.LabelImplementBy}}, edges(a.Graph))

	ents := byName(a.Graph)
	require.Len(t, ents, 2)
	assert.Equal(t, []string{types.DefaultLabel}, ents["栈"].Labels)
	assert.Equal(t, "auto_extraction", ents["栈"].Properties["source"])
	assert.NotEmpty(t, a.Graph.RunID)
	assert.NoError(t, a.Graph.Validate())
}

func TestRunEntityIDsStable(t *testing.T) {
	p := newTestPipeline(t, []string{"栈", "数组"}, nil, stackUsesArray())
	doc := "栈 使用 数组 实现。\n\n栈 使用 数组 实现。\n"

	a, err := p.Analyze(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Len(t, a.Sentences, 2)
	assert.Len(t, a.Graph.Entities, 2)
	assert.Len(t, a.Graph.Relations, 1)
	assert.Equal(t, 1, a.Stats.Deduped)

	for i, e := range a.Graph.Entities {
		assert.Equal(t, int64(i+1), e.ID)
	}

	// a second run assigns the same ids
	g2, err := p.Run(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	for name, e := range byName(a.Graph) {
		assert.Equal(t, e.ID, byName(g2)[name].ID, name)
	}
	assert.NotEqual(t, a.Graph.RunID, g2.RunID)
}

func TestRunSeedKeepsIDs(t *testing.T) {
	seed := []*types.Entity{
		types.NewEntity(7, "栈", types.ProvenanceSeed),
		types.NewEntity(3, "队列", types.ProvenanceSeed),
		types.NewEntity(3, "重复", types.ProvenanceSeed),
	}
	p := newTestPipeline(t, []string{"栈", "数组"}, seed, stackUsesArray())

	g, err := p.Run(context.Background(), strings.NewReader("栈 使用 数组 实现。"))
	require.NoError(t, err)

	ents := byName(g)
	assert.Equal(t, int64(7), ents["栈"].ID)
	assert.Equal(t, int64(8), ents["数组"].ID)
	assert.Equal(t, int64(3), ents["队列"].ID)
	assert.NotContains(t, ents, "重复")
	assert.Equal(t, int64(3), g.Entities[0].ID)

	// seeding must not leak into the caller's entities
	assert.Equal(t, "seed", seed[0].Properties["source"])
	_, tagged := seed[0].Properties["chapter"]
	assert.False(t, tagged)
}

func TestChapterHeuristic(t *testing.T) {
	s := nlptest.Sentence(true,
		"顺序栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
	p := newTestPipeline(t, []string{"顺序栈", "数组"}, nil, s)

	doc := "# 栈\n顺序栈 使用 数组 实现。\n"
	a, err := p.Analyze(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.ElementsMatch(t, []edge{
		{"顺序栈", "数组", types.LabelImplementBy},
		{"顺序栈", "栈", types.LabelIsA},
	}, edges(a.Graph))

	ents := byName(a.Graph)
	require.Contains(t, ents, "栈")
	assert.Equal(t, "chapter_title", ents["栈"].Properties["source"])
	assert.Equal(t, int64(3), ents["栈"].ID)
	assert.Equal(t, "栈", ents["顺序栈"].Properties["chapter"])
	assert.Equal(t, 1, a.Stats.ChapterLinks)
	assert.Equal(t, "栈", a.Sentences[0].Chapter)
}

func TestChapterHeuristicFullWidthHeading(t *testing.T) {
	s := nlptest.Sentence(true,
		"顺序栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
	p := newTestPipeline(t, []string{"顺序栈", "数组"}, nil, s)

	doc := "第三章\u3000栈\n顺序栈 使用 数组 实现。\n"
	a, err := p.Analyze(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.ElementsMatch(t, []edge{
		{"顺序栈", "数组", types.LabelImplementBy},
		{"顺序栈", "栈", types.LabelIsA},
	}, edges(a.Graph))
	assert.Equal(t, "栈", a.Sentences[0].Chapter)
	assert.Equal(t, 1, a.Stats.ChapterLinks)
}

func TestChapterHeuristicIdempotent(t *testing.T) {
	s := nlptest.Sentence(true,
		"顺序栈|NOUN|nsubj|1",
		"是|VERB|ROOT|1",
		"栈|NOUN|attr|1",
	)
	p := newTestPipeline(t, []string{"顺序栈", "栈"}, nil, s)

	doc := "第三章 栈\n顺序栈 是 栈。\n"
	a, err := p.Analyze(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, []edge{{"顺序栈", "栈", types.LabelIsA}}, edges(a.Graph))
	assert.Equal(t, 0, a.Stats.ChapterLinks)
	assert.Equal(t, "auto_extraction", byName(a.Graph)["栈"].Properties["source"])
}

func TestSecondPassSeesLaterEntities(t *testing.T) {
	// 链表 is mis-tagged in the first sentence and only recognized in the second
	first := nlptest.Sentence(true,
		"顺序栈|NOUN|nsubj|1",
		"基于|ADP|ROOT|1",
		"链表|VERB|obj|1",
	)
	second := nlptest.Sentence(true,
		"链表|NOUN|nsubj|1",
		"是|VERB|ROOT|1",
		"线性表|NOUN|attr|1",
	)
	p := newTestPipeline(t, nil, nil, first, second)

	a, err := p.Analyze(context.Background(), strings.NewReader("顺序栈 基于 链表。\n链表 是 线性表。"))
	require.NoError(t, err)

	assert.Equal(t, []string{"顺序栈"}, a.Sentences[0].Entities)
	assert.ElementsMatch(t, []edge{
		{"顺序栈", "链表", types.LabelImplementBy},
		{"链表", "线性表", types.LabelIsA},
	}, edges(a.Graph))
}

func TestRunErrors(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoAnnotator)

	boom := errors.New("parser down")
	p, err := NewPipeline(nlptest.Failing(boom), nil, nil, &Config{Logger: quietLogger()})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), strings.NewReader("栈 使用 数组。"))
	assert.ErrorIs(t, err, boom)

	readErr := errors.New("disk gone")
	_, err = p.Run(context.Background(), iotest.ErrReader(readErr))
	assert.ErrorIs(t, err, readErr)
}

func TestNewPipelineLeavesConfigUntouched(t *testing.T) {
	cfg := &Config{Logger: quietLogger()}
	p, err := NewPipeline(nlptest.Annotator(), nil, nil, cfg)
	require.NoError(t, err)
	assert.Zero(t, cfg.Workers)
	assert.Nil(t, cfg.Preprocessor)
	assert.Positive(t, p.config.Workers)
	assert.NotNil(t, p.config.Preprocessor)

	_, err = NewPipeline(nlptest.Annotator(), nil, nil, nil)
	require.NoError(t, err)
}

func TestAddRelationRejectsUnknownAndSelfLoops(t *testing.T) {
	st := newRunState(nil)
	st.observe("栈", types.ProvenanceExtraction)
	st.observe("数组", types.ProvenanceExtraction)
	logger := quietLogger()

	st.addRelation(types.Triple{Source: "栈", Target: "链表", Type: types.LabelIsA}, logger)
	st.addRelation(types.Triple{Source: "栈", Target: "栈", Type: types.LabelIsA}, logger)
	st.addRelation(types.Triple{Source: "栈", Target: "数组", Type: types.LabelImplementBy}, logger)
	st.addRelation(types.Triple{Source: "栈", Target: "数组", Type: types.LabelImplementBy}, logger)

	assert.Equal(t, 1, st.stats.DroppedUnknown)
	assert.Equal(t, 1, st.stats.DroppedSelfLoop)
	assert.Equal(t, 1, st.stats.Deduped)
	require.Len(t, st.relations, 1)
	assert.NoError(t, st.graph().Validate())
}
