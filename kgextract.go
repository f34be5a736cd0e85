// Package kgextract assembles entity/relation graphs from domain text.
package kgextract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/go-kgextract/pkg/entities"
	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/relations"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

// Assembler turns a document into an entity/relation graph.
type Assembler interface {
	// Run reads the whole document and returns the assembled graph.
	Run(ctx context.Context, r io.Reader) (*types.Graph, error)

	// Analyze is Run that also returns the per-sentence extractions.
	Analyze(ctx context.Context, r io.Reader) (*Analysis, error)
}

// Pipeline is the default Assembler. A Pipeline holds no per-run state and
// may run several documents concurrently.
type Pipeline struct {
	annotator nlp.Annotator
	entities  *entities.Extractor
	relations *relations.Extractor
	config    *Config
	logger    *slog.Logger
}

// Config holds configuration for a Pipeline.
type Config struct {
	// Workers bounds concurrent annotation in the first pass. Zero means
	// GOMAXPROCS.
	Workers int
	// Seed pre-populates the entity table so ids survive across runs.
	Seed []*types.Entity
	// Preprocessor cleans and splits lines; nil selects the defaults.
	Preprocessor *nlp.Preprocessor
	Logger       *slog.Logger
}

// SentenceResult is the extraction result for one sentence.
type SentenceResult struct {
	Sentence string         `json:"sentence"`
	Chapter  string         `json:"chapter,omitempty"`
	Entities []string       `json:"entities"`
	Triples  []types.Triple `json:"triples"`
}

// Analysis is the graph plus the per-sentence results it was built from.
type Analysis struct {
	Graph     *types.Graph
	Sentences []SentenceResult
	Stats     Stats
}

// Stats counts what happened during a run.
type Stats struct {
	Sentences       int `json:"sentences"`
	Entities        int `json:"entities"`
	Relations       int `json:"relations"`
	ChapterLinks    int `json:"chapter_links"`
	Deduped         int `json:"deduped"`
	DroppedUnknown  int `json:"dropped_unknown"`
	DroppedSelfLoop int `json:"dropped_self_loops"`
}

// NewPipeline creates a pipeline. The entity extractor defaults to a
// POS-only extractor and the relation extractor to rule mode. config is
// copied; defaults are not written back to the caller.
func NewPipeline(annotator nlp.Annotator, ents *entities.Extractor, rels *relations.Extractor, config *Config) (*Pipeline, error) {
	if annotator == nil {
		return nil, ErrNoAnnotator
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	config = &cfg
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	if config.Preprocessor == nil {
		config.Preprocessor = nlp.NewPreprocessor(nil)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if ents == nil {
		ents = entities.NewExtractor(nil, nil)
	}
	if rels == nil {
		rels = relations.New(relations.Options{Logger: logger})
	}
	return &Pipeline{
		annotator: annotator,
		entities:  ents,
		relations: rels,
		config:    config,
		logger:    logger,
	}, nil
}

// Run implements Assembler.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*types.Graph, error) {
	a, err := p.Analyze(ctx, r)
	if err != nil {
		return nil, err
	}
	return a.Graph, nil
}

// unit is a sentence together with the chapter it appeared under.
type unit struct {
	text    string
	chapter string
}

// annotated is the first-pass result for one unit.
type annotated struct {
	unit
	entities []string
	merged   *nlp.Sentence
}

// Analyze implements Assembler.
//
// The first pass annotates every sentence, extracts entities and merges
// vocabulary spans; entities are registered in document order. The second
// pass extracts relations against the complete entity set and applies the
// chapter heuristic, strictly in document order.
func (p *Pipeline) Analyze(ctx context.Context, r io.Reader) (*Analysis, error) {
	units, err := p.readUnits(r)
	if err != nil {
		return nil, err
	}

	st := newRunState(p.config.Seed)
	logger := p.logger.With("run_id", st.runID)
	logger.Info("starting extraction", "sentences", len(units), "seeded", len(st.order))

	docs, err := p.annotate(ctx, units)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		for _, name := range d.entities {
			st.observe(name, types.ProvenanceExtraction)
		}
	}
	logger.Info("first pass complete", "unique_entities", len(st.known))

	results := make([]SentenceResult, 0, len(docs))
	for _, d := range docs {
		triples, err := p.relations.Extract(ctx, d.merged, st.known)
		if err != nil {
			return nil, fmt.Errorf("failed to extract relations from %q: %w", d.text, err)
		}
		triples = p.linkChapter(st, d, triples)
		for _, t := range triples {
			st.addRelation(t, logger)
		}
		results = append(results, SentenceResult{
			Sentence: d.text,
			Chapter:  d.chapter,
			Entities: d.entities,
			Triples:  triples,
		})
	}

	g := st.graph()
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("assembled graph is inconsistent: %w", err)
	}
	st.stats.Sentences = len(units)
	st.stats.Entities = len(g.Entities)
	st.stats.Relations = len(g.Relations)
	logger.Info("extraction complete",
		"entities", st.stats.Entities,
		"relations", st.stats.Relations,
		"chapter_links", st.stats.ChapterLinks,
		"deduped", st.stats.Deduped,
		"dropped_unknown", st.stats.DroppedUnknown,
		"dropped_self_loops", st.stats.DroppedSelfLoop,
	)
	return &Analysis{Graph: g, Sentences: results, Stats: st.stats}, nil
}

// readUnits splits the document into sentences, tracking the current
// chapter topic. Heading lines are not sentences.
func (p *Pipeline) readUnits(r io.Reader) ([]unit, error) {
	var units []unit
	chapter := ""
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if nlp.IsHeading(line) {
			if topic := nlp.HeadingTopic(line); topic != "" {
				chapter = topic
				p.logger.Debug("chapter detected", "topic", topic)
			}
			continue
		}
		for _, s := range p.config.Preprocessor.Sentences(line) {
			units = append(units, unit{text: s, chapter: chapter})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return units, nil
}

// annotate runs the first pass over units with bounded concurrency. Results
// keep document order.
func (p *Pipeline) annotate(ctx context.Context, units []unit) ([]annotated, error) {
	out := make([]annotated, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)
	for i, u := range units {
		g.Go(func() error {
			s, err := p.annotator.Annotate(gctx, u.text)
			if err != nil {
				return fmt.Errorf("failed to annotate %q: %w", u.text, err)
			}
			out[i] = annotated{
				unit:     u,
				entities: p.entities.Extract(s),
				merged:   p.entities.MergeTerms(s),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// linkChapter adds (entity, chapter, 属于) for every mention that contains
// the chapter topic and is not yet linked to it.
func (p *Pipeline) linkChapter(st *runState, d annotated, triples []types.Triple) []types.Triple {
	if d.chapter == "" {
		return triples
	}
	for _, name := range d.entities {
		if name == d.chapter || !strings.Contains(name, d.chapter) {
			continue
		}
		if linked(triples, name, d.chapter) {
			continue
		}
		st.observe(d.chapter, types.ProvenanceChapter)
		if e, ok := st.entities[name]; ok {
			e.MergeProperty("chapter", d.chapter)
		}
		triples = append(triples, types.Triple{Source: name, Target: d.chapter, Type: types.LabelIsA})
		st.stats.ChapterLinks++
	}
	return triples
}

func linked(triples []types.Triple, source, target string) bool {
	for _, t := range triples {
		if t.Source == source && t.Target == target {
			return true
		}
	}
	return false
}

// runState is the mutable state of one run, owned by a single Analyze call.
type runState struct {
	runID     string
	nextID    int64
	entities  map[string]*types.Entity
	order     []*types.Entity
	known     []string
	knownSet  map[string]bool
	relations []*types.Relation
	seen      map[types.RelationKey]bool
	stats     Stats
}

func newRunState(seed []*types.Entity) *runState {
	st := &runState{
		runID:    uuid.NewString(),
		nextID:   1,
		entities: make(map[string]*types.Entity),
		knownSet: make(map[string]bool),
		seen:     make(map[types.RelationKey]bool),
	}
	ids := make(map[int64]bool, len(seed))
	for _, e := range seed {
		if e == nil || e.Name == "" || e.ID <= 0 || ids[e.ID] {
			continue
		}
		if _, dup := st.entities[e.Name]; dup {
			continue
		}
		ids[e.ID] = true
		c := *e
		c.Properties = make(map[string]interface{}, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
		st.entities[c.Name] = &c
		st.order = append(st.order, &c)
		if c.ID >= st.nextID {
			st.nextID = c.ID + 1
		}
	}
	return st
}

// observe marks name as known and registers it with a fresh id on first
// sight. Registered names keep their id.
func (st *runState) observe(name string, p types.Provenance) *types.Entity {
	if !st.knownSet[name] {
		st.knownSet[name] = true
		st.known = append(st.known, name)
	}
	if e, ok := st.entities[name]; ok {
		return e
	}
	e := types.NewEntity(st.nextID, name, p)
	st.nextID++
	st.entities[name] = e
	st.order = append(st.order, e)
	return e
}

// addRelation resolves names to ids and keeps the first copy of each
// (source, target, type).
func (st *runState) addRelation(t types.Triple, logger *slog.Logger) {
	src, okS := st.entities[t.Source]
	dst, okT := st.entities[t.Target]
	if !okS || !okT {
		st.stats.DroppedUnknown++
		logger.Warn("dropping relation with unregistered entity", "source", t.Source, "target", t.Target, "type", t.Type)
		return
	}
	if src.ID == dst.ID {
		st.stats.DroppedSelfLoop++
		logger.Warn("dropping self-loop", "entity", t.Source, "type", t.Type)
		return
	}
	rel := &types.Relation{SourceID: src.ID, TargetID: dst.ID, Type: t.Type, Properties: t.Properties}
	if rel.Properties == nil {
		rel.Properties = map[string]interface{}{}
	}
	if st.seen[rel.Key()] {
		st.stats.Deduped++
		return
	}
	st.seen[rel.Key()] = true
	st.relations = append(st.relations, rel)
}

func (st *runState) graph() *types.Graph {
	ents := make([]*types.Entity, len(st.order))
	copy(ents, st.order)
	sort.SliceStable(ents, func(i, j int) bool { return ents[i].ID < ents[j].ID })
	return &types.Graph{RunID: st.runID, Entities: ents, Relations: st.relations}
}

var (
	// ErrNoAnnotator is returned when a pipeline is created without an
	// annotator.
	ErrNoAnnotator = errors.New("no sentence annotator configured")
)
