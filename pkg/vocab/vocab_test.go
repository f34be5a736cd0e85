package vocab

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soundprediction/go-kgextract/pkg/nlp"
	"github.com/soundprediction/go-kgextract/pkg/nlp/nlptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	v, err := Read(strings.NewReader("# 数据结构术语\n栈\n\n 队列 \n栈\n线性表\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"栈", "队列", "线性表"}, v.Terms())
	assert.True(t, v.Contains("队列"))
	assert.False(t, v.Contains("# 数据结构术语"))
}

func TestLoadMissingFile(t *testing.T) {
	v, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, ErrNotFound)
	require.NotNil(t, v)
	assert.Equal(t, 0, v.Len())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domain_vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte("Linked List\n数组\n"), 0o644))
	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Len())
}

func TestIsPartOfTerm(t *testing.T) {
	v := New([]string{"Linked List", "二叉树"})
	assert.True(t, v.IsPartOfTerm("List"))
	assert.True(t, v.IsPartOfTerm("叉树"))
	assert.False(t, v.IsPartOfTerm("list"))
	assert.False(t, v.IsPartOfTerm("二叉树"))
	assert.False(t, (*Vocabulary)(nil).IsPartOfTerm("x"))
}

func TestMatchPrefersLongestSpan(t *testing.T) {
	v := New([]string{"二叉", "二叉树", "树"})
	s := nlptest.Sentence(false,
		"二|NUM|nummod|1",
		"叉|NOUN|compound|2",
		"树|NOUN|nsubj|3",
		"是|VERB|ROOT|3",
		"树|NOUN|attr|3",
	)
	got := v.Match(s)
	assert.Equal(t, []nlp.Span{{Start: 0, End: 3}, {Start: 4, End: 5}}, got)
}

func TestMatchMultiWordTerm(t *testing.T) {
	v := New([]string{"Linked List"})
	s := nlptest.Sentence(true,
		"Linked|PROPN|compound|1",
		"List|PROPN|nsubj|2",
		"is|AUX|ROOT|2",
		"a|DET|det|4",
		"list|NOUN|attr|2",
	)
	assert.Equal(t, []nlp.Span{{Start: 0, End: 2}}, v.Match(s))
}
