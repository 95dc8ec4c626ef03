// Package normalization holds the canonical node-type vocabulary and the
// alias table that maps extractor output onto it.
package normalization

import "strings"

// Canonical knowledge-point types. Anything the extractor emits outside
// this set collapses to DefaultNodeType via the alias table.
const (
	TypeSubject        = "Subject"
	TypeChapter        = "Chapter"
	TypeKnowledgePoint = "KnowledgePoint"
	TypeSkill          = "Skill"
	TypeConcept        = "Concept"
	TypePrinciple      = "Principle"
	TypeFormula        = "Formula"
	TypeExample        = "Example"

	DefaultNodeType   = TypeKnowledgePoint
	DefaultDifficulty = "medium"
	DefaultImportance = 0.5
)

// nodeTypeAliases is pure data: lowercase input -> canonical type.
// Kept flat on purpose so new extractor vocabulary is a one-line change.
var nodeTypeAliases = map[string]string{
	"subject":         TypeSubject,
	"course":          TypeSubject,
	"discipline":      TypeSubject,
	"chapter":         TypeChapter,
	"unit":            TypeChapter,
	"section":         TypeChapter,
	"topic":           TypeChapter,
	"knowledgepoint":  TypeKnowledgePoint,
	"knowledge_point": TypeKnowledgePoint,
	"knowledge point": TypeKnowledgePoint,
	"point":           TypeKnowledgePoint,
	"skill":           TypeSkill,
	"ability":         TypeSkill,
	"method":          TypeSkill,
	"concept":         TypeConcept,
	"term":            TypeConcept,
	"definition":      TypeConcept,
	"principle":       TypePrinciple,
	"law":             TypePrinciple,
	"theorem":         TypePrinciple,
	"rule":            TypePrinciple,
	"formula":         TypeFormula,
	"equation":        TypeFormula,
	"example":         TypeExample,
	"exercise":        TypeExample,
	"problem":         TypeExample,
}

// NodeType maps a raw extractor type onto the canonical set. Unknown and
// empty inputs normalize to DefaultNodeType.
func NodeType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return DefaultNodeType
	}
	if canonical, ok := nodeTypeAliases[key]; ok {
		return canonical
	}
	return DefaultNodeType
}

// Difficulty fills the default difficulty label for nodes that carry none.
func Difficulty(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return DefaultDifficulty
	}
	return v
}

// Importance clamps an importance score into [0,1], defaulting when unset.
func Importance(raw float64, present bool) float64 {
	if !present {
		return DefaultImportance
	}
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}
