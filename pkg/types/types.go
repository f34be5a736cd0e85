package types

import (
	"errors"
	"fmt"
)

var (
	// ErrDanglingRelation is returned when a relation references an entity id
	// that is not in the entity table.
	ErrDanglingRelation = errors.New("relation references unknown entity")
	// ErrSelfLoop is returned when a relation links an entity to itself.
	ErrSelfLoop = errors.New("relation is a self-loop")
)

// DefaultLabel is the label given to every extracted entity.
const DefaultLabel = "知识点"

// Provenance records how an entity entered the table.
type Provenance string

const (
	// ProvenanceExtraction marks entities found by the entity extractor.
	ProvenanceExtraction Provenance = "auto_extraction"
	// ProvenanceChapter marks entities created from a chapter heading.
	ProvenanceChapter Provenance = "chapter_title"
	// ProvenanceSeed marks entities loaded from a previous run's table.
	ProvenanceSeed Provenance = "seed"
)

// Entity is a knowledge entity. Name is unique within a run and ID never
// changes once assigned.
type Entity struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
	Provenance Provenance             `json:"-"`
}

// NewEntity creates an entity with the default label and a source property
// matching its provenance.
func NewEntity(id int64, name string, p Provenance) *Entity {
	return &Entity{
		ID:         id,
		Name:       name,
		Labels:     []string{DefaultLabel},
		Properties: map[string]interface{}{"source": string(p)},
		Provenance: p,
	}
}

// MergeProperty sets key only if it is not already present. It reports
// whether the entity changed.
func (e *Entity) MergeProperty(key string, value interface{}) bool {
	if e.Properties == nil {
		e.Properties = make(map[string]interface{})
	}
	if _, ok := e.Properties[key]; ok {
		return false
	}
	e.Properties[key] = value
	return true
}

// Triple is a typed relation between two entity names.
type Triple struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Key identifies a triple for deduplication.
func (t Triple) Key() TripleKey {
	return TripleKey{Source: t.Source, Target: t.Target, Type: t.Type}
}

// TripleKey is the comparable part of a Triple.
type TripleKey struct {
	Source, Target, Type string
}

// Relation is a row of the relation table.
type Relation struct {
	SourceID   int64                  `json:"source_id"`
	TargetID   int64                  `json:"target_id"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// RelationKey is the deduplication key of a relation row.
type RelationKey struct {
	SourceID, TargetID int64
	Type               string
}

// Key returns the deduplication key of r.
func (r Relation) Key() RelationKey {
	return RelationKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// Graph is the assembled output of one run: the entity table ordered by id
// and the deduplicated relation table.
type Graph struct {
	RunID     string      `json:"run_id"`
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
}

// Validate checks that every relation references ids present in the entity
// table and links two different entities.
func (g *Graph) Validate() error {
	ids := make(map[int64]bool, len(g.Entities))
	for _, e := range g.Entities {
		ids[e.ID] = true
	}
	for _, r := range g.Relations {
		if !ids[r.SourceID] || !ids[r.TargetID] {
			return fmt.Errorf("%w: %d -[%s]-> %d", ErrDanglingRelation, r.SourceID, r.Type, r.TargetID)
		}
		if r.SourceID == r.TargetID {
			return fmt.Errorf("%w: %d -[%s]-> %d", ErrSelfLoop, r.SourceID, r.Type, r.TargetID)
		}
	}
	return nil
}

// Entity returns the entity with the given id.
func (g *Graph) Entity(id int64) (*Entity, bool) {
	for _, e := range g.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}
