package kgx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-kgextract/pkg/config"
	"github.com/soundprediction/go-kgextract/pkg/dataset"
	"github.com/soundprediction/go-kgextract/pkg/export"
	"github.com/soundprediction/go-kgextract/pkg/features"
	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/soundprediction/go-kgextract/pkg/relations"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "Version:    dev")
}

func TestOverrideConfigWithFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("vocabulary", "", "")
	cmd.Flags().String("model", "", "")
	cmd.Flags().Int("workers", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--vocabulary", "/tmp/terms.txt", "--workers", "3"}))

	cfg := &config.Config{}
	cfg.Paths.Model = "model.json"
	overrideConfigWithFlags(cmd, cfg)

	assert.Equal(t, "/tmp/terms.txt", cfg.Paths.Vocabulary)
	assert.Equal(t, 3, cfg.Extract.Workers)
	assert.Equal(t, "model.json", cfg.Paths.Model)
}

func TestOpenSinks(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{Output: config.OutputConfig{
		Dir:    filepath.Join(dir, "csv"),
		DuckDB: filepath.Join(dir, "kg.duckdb"),
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sinks, err := openSinks(cfg, logger)
	require.NoError(t, err)
	require.Len(t, sinks, 2)

	g := &types.Graph{
		RunID:    "r",
		Entities: []*types.Entity{types.NewEntity(1, "栈", types.ProvenanceExtraction), types.NewEntity(2, "数组", types.ProvenanceExtraction)},
		Relations: []*types.Relation{
			{SourceID: 1, TargetID: 2, Type: types.LabelImplementBy},
		},
	}
	require.NoError(t, sinks.Write(context.Background(), g))
	require.NoError(t, sinks.Close())

	ents, _, err := export.ReadEntitiesFile(filepath.Join(cfg.Output.Dir, export.EntityFile), logger)
	require.NoError(t, err)
	assert.Len(t, ents, 2)
}

// properNounStump predicts 实现方式 only when the first entity is tagged PROPN.
const properNounStump = `{
  "model": {
    "classes": ["None", "实现方式"],
    "trees": [{
      "children_left": [1, -1, -1],
      "children_right": [2, -1, -1],
      "feature": [0, -2, -2],
      "threshold": [0.5, -2, -2],
      "value": [[0, 0], [4, 0], [0, 4]]
    }]
  },
  "vectorizer": {"feature_names": ["e1_pos=PROPN"]}
}`

// stackParse tags 栈 as PROPN, unlike the pass-1 tree handed to Extract.
const stackParse = `{"text": "栈 使用 数组 实现", "tokens": [
  {"index": 0, "text": "栈", "pos": "PROPN", "dep": "nsubj", "head": 1, "space_after": true},
  {"index": 1, "text": "使用", "pos": "VERB", "dep": "ROOT", "head": 1, "space_after": true},
  {"index": 2, "text": "数组", "pos": "NOUN", "dep": "obj", "head": 1, "space_after": true},
  {"index": 3, "text": "实现", "pos": "VERB", "dep": "conj", "head": 1}
]}`

func TestBuildComponentsClassifierReannotates(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.json")
	parses := filepath.Join(dir, "parses.jsonl")
	require.NoError(t, os.WriteFile(model, []byte(properNounStump), 0o644))
	require.NoError(t, os.WriteFile(parses, []byte(strings.ReplaceAll(stackParse, "\n", "")+"\n"), 0o644))

	cfg := &config.Config{}
	cfg.Paths.Vocabulary = filepath.Join(dir, "missing.txt")
	cfg.Paths.Model = model
	cfg.Paths.Parses = parses
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := buildComponents(cfg, logger)
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, relations.ModeClassifier, c.relations.Mode())

	merged := nlptest.Sentence(true,
		"栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
	got, err := c.relations.Extract(context.Background(), merged, []string{"栈", "数组"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [3]string{"栈", "数组", types.LabelImplementBy}, [3]string{got[0].Source, got[0].Target, got[0].Type})
}

func TestEncodeDataset(t *testing.T) {
	dir := t.TempDir()
	s := nlptest.Sentence(true,
		"栈|NOUN|nsubj|1",
		"使用|VERB|ROOT|1",
		"数组|NOUN|obj|1",
		"实现|VERB|conj|1",
	)
	in := filepath.Join(dir, "train_data.json")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, dataset.Write(f, []types.LabeledExample{
		{Sentence: s.Text(), Entity1: "栈", Entity2: "数组", Label: types.LabelImplementBy},
		{Sentence: s.Text(), Entity1: "数组", Entity2: "栈", Label: types.LabelNone},
		{Sentence: s.Text(), Entity1: "队列", Entity2: "栈", Label: types.LabelNone},
	}))
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "encoded", "features.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	encoded, skipped, err := encodeDataset(context.Background(), features.NewExtractor(nlptest.Annotator(s)), in, out, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, encoded)
	assert.Equal(t, 1, skipped)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var set features.TrainingSet
	require.NoError(t, json.Unmarshal(raw, &set))
	assert.Equal(t, []string{types.LabelImplementBy, types.LabelNone}, set.Y)
	require.Len(t, set.X, 2)
	require.NoError(t, set.Vectorizer.Validate())
	assert.Contains(t, set.Vectorizer.FeatureNames, "lca_text=使用")
	assert.Len(t, set.X[0], set.Vectorizer.Dim())

	_, _, err = encodeDataset(context.Background(), features.NewExtractor(nlptest.Annotator(s)), filepath.Join(dir, "missing.json"), out, logger)
	assert.Error(t, err)
}
