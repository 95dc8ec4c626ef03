package normalization

import "testing"

func TestNodeTypeAliases(t *testing.T) {
	cases := map[string]string{
		"Concept":         TypeConcept,
		"concept":         TypeConcept,
		"THEOREM":         TypePrinciple,
		"equation":        TypeFormula,
		"unit":            TypeChapter,
		"knowledge_point": TypeKnowledgePoint,
		"ability":         TypeSkill,
		"  subject  ":     TypeSubject,
	}
	for in, want := range cases {
		if got := NodeType(in); got != want {
			t.Errorf("NodeType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNodeTypeUnknownDefaults(t *testing.T) {
	for _, in := range []string{"", "banana", "node", "???"} {
		if got := NodeType(in); got != DefaultNodeType {
			t.Errorf("NodeType(%q) = %q, want default %q", in, got, DefaultNodeType)
		}
	}
}

func TestDifficultyDefault(t *testing.T) {
	if got := Difficulty(""); got != DefaultDifficulty {
		t.Fatalf("empty difficulty should default to %q, got %q", DefaultDifficulty, got)
	}
	if got := Difficulty("hard"); got != "hard" {
		t.Fatalf("explicit difficulty should pass through, got %q", got)
	}
}

func TestImportance(t *testing.T) {
	if got := Importance(0, false); got != DefaultImportance {
		t.Fatalf("missing importance should default to %v, got %v", DefaultImportance, got)
	}
	if got := Importance(1.7, true); got != 1 {
		t.Fatalf("importance should clamp to 1, got %v", got)
	}
	if got := Importance(-0.3, true); got != 0 {
		t.Fatalf("importance should clamp to 0, got %v", got)
	}
	if got := Importance(0.42, true); got != 0.42 {
		t.Fatalf("importance should pass through, got %v", got)
	}
}
