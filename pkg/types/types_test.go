package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphValidate(t *testing.T) {
	entities := []*Entity{
		NewEntity(1, "栈", ProvenanceExtraction),
		NewEntity(2, "数组", ProvenanceExtraction),
	}

	tests := []struct {
		name      string
		relations []*Relation
		wantErr   error
	}{
		{"valid", []*Relation{{SourceID: 1, TargetID: 2, Type: LabelImplementBy}}, nil},
		{"dangling target", []*Relation{{SourceID: 1, TargetID: 9, Type: LabelIsA}}, ErrDanglingRelation},
		{"dangling source", []*Relation{{SourceID: 0, TargetID: 2, Type: LabelIsA}}, ErrDanglingRelation},
		{"self loop", []*Relation{{SourceID: 2, TargetID: 2, Type: LabelIsA}}, ErrSelfLoop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Graph{Entities: entities, Relations: tt.relations}
			err := g.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPriorityOrder(t *testing.T) {
	order := []string{LabelNone, LabelContains, LabelAppliedIn, LabelImplementBy, LabelIsA}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, Priority(order[i]), Priority(order[i-1]), order[i])
	}
	assert.Less(t, Priority("unknown"), Priority(LabelNone))
}

func TestMergeProperty(t *testing.T) {
	e := NewEntity(1, "二叉树", ProvenanceExtraction)
	assert.Equal(t, "auto_extraction", e.Properties["source"])

	assert.True(t, e.MergeProperty("chapter", "树"))
	assert.False(t, e.MergeProperty("chapter", "图"))
	assert.Equal(t, "树", e.Properties["chapter"])
	assert.Equal(t, []string{DefaultLabel}, e.Labels)
}
