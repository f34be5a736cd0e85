package dto

import (
	"github.com/soundprediction/go-kgextract"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

// ExtractRequest carries a text fragment to analyze. Headings in the text
// take part in the chapter heuristic just like in a document.
type ExtractRequest struct {
	Text string `json:"text" binding:"required"`
}

// ExtractResponse is the graph built from one request.
type ExtractResponse struct {
	RunID     string                     `json:"run_id"`
	Mode      string                     `json:"mode"`
	Sentences []kgextract.SentenceResult `json:"sentences"`
	Entities  []*types.Entity            `json:"entities"`
	Relations []*types.Relation          `json:"relations"`
	Stats     kgextract.Stats            `json:"stats"`
}

// FeaturesRequest names an ordered entity pair within a sentence.
type FeaturesRequest struct {
	Sentence string `json:"sentence" binding:"required"`
	Entity1  string `json:"entity1" binding:"required"`
	Entity2  string `json:"entity2" binding:"required"`
}

// FeaturesResponse is the feature record of a pair. Label is set when a
// classifier is loaded and the record is not empty.
type FeaturesResponse struct {
	Features map[string]interface{} `json:"features"`
	Label    string                 `json:"label,omitempty"`
}
