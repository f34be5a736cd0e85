package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagged(pairs ...string) *Sentence {
	var tokens []*Token
	for i := 0; i+1 < len(pairs); i += 2 {
		tokens = append(tokens, &Token{Text: pairs[i], POS: pairs[i+1]})
	}
	return NewSentence(tokens)
}

func TestAttachShallowSubjectVerbObject(t *testing.T) {
	s := tagged("栈", PosNoun, "使用", PosVerb, "数组", PosNoun, "实现", PosVerb)
	attachShallow(s, nil)

	assert.Equal(t, DepRoot, s.Tokens[1].Dep)
	assert.Equal(t, 1, s.Tokens[1].Head)
	assert.Equal(t, DepNsubj, s.Tokens[0].Dep)
	assert.Equal(t, 1, s.Tokens[0].Head)
	assert.Equal(t, DepObj, s.Tokens[2].Dep)
	assert.Equal(t, 1, s.Tokens[2].Head)
	assert.Equal(t, DepDep, s.Tokens[3].Dep)
}

func TestAttachShallowCoordinationAndCompounds(t *testing.T) {
	s := tagged(
		"线性", PosNoun, "结构", PosNoun, "包括", PosVerb,
		"栈", PosNoun, "和", "CCONJ", "队列", PosNoun,
	)
	attachShallow(s, nil)

	assert.Equal(t, DepCompound, s.Tokens[0].Dep)
	assert.Equal(t, 1, s.Tokens[0].Head)
	assert.Equal(t, DepNsubj, s.Tokens[1].Dep)
	assert.Equal(t, DepObj, s.Tokens[3].Dep)
	assert.Equal(t, DepConj, s.Tokens[5].Dep)
	assert.Equal(t, 3, s.Tokens[5].Head)
}

func TestAttachShallowKeywordRoot(t *testing.T) {
	s := tagged("栈", PosNoun, "是", PosX, "线性表", PosNoun)
	attachShallow(s, []string{"是"})
	require.Equal(t, DepRoot, s.Tokens[1].Dep)
	assert.Equal(t, DepObj, s.Tokens[2].Dep)
}

func TestUniversalPOS(t *testing.T) {
	assert.Equal(t, PosNoun, universalPOS("数组", "n"))
	assert.Equal(t, PosPropn, universalPOS("Dijkstra", "nr"))
	assert.Equal(t, PosVerb, universalPOS("使用", "v"))
	assert.Equal(t, PosPunct, universalPOS("，", "x"))
	assert.Equal(t, PosX, universalPOS("abc", ""))
}
