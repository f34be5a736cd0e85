package types

// Relation labels.
const (
	LabelContains    = "包含"
	LabelIsA         = "属于"
	LabelImplementBy = "实现方式"
	LabelAppliedIn   = "应用场景"
	// LabelNone marks a negative training example.
	LabelNone = "None"
)

// Priority orders labels for conflict arbitration. Unknown labels rank
// below LabelNone.
func Priority(label string) int {
	switch label {
	case LabelIsA:
		return 4
	case LabelImplementBy:
		return 3
	case LabelAppliedIn:
		return 2
	case LabelContains:
		return 1
	case LabelNone:
		return 0
	}
	return -1
}

// LabeledExample is one training record.
type LabeledExample struct {
	Sentence string `json:"sentence"`
	Entity1  string `json:"entity1"`
	Entity2  string `json:"entity2"`
	Label    string `json:"label"`
}

// ExampleKey identifies the entity pair of an example within its sentence.
type ExampleKey struct {
	Sentence, Entity1, Entity2 string
}

// Key returns the arbitration key of x.
func (x LabeledExample) Key() ExampleKey {
	return ExampleKey{Sentence: x.Sentence, Entity1: x.Entity1, Entity2: x.Entity2}
}
