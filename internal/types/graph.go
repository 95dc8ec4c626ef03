package types

// Relation types stored in the graph. Traversal treats all of them as
// undirected adjacency even though edges are stored with a direction.
const (
	RelDependsOn = "DEPENDS_ON"
	RelRelatesTo = "RELATES_TO"
	RelSimilarTo = "SIMILAR_TO"
	RelPartOf    = "PART_OF"
)

// KnowledgePoint is one extracted concept node, always scoped to the
// owning user and the document that produced it.
type KnowledgePoint struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Subject     string    `json:"subject,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	Description string    `json:"description,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Embedding   []float64 `json:"-"`
	UserID      string    `json:"-"`
	DocumentID  string    `json:"document_id,omitempty"`
	Difficulty  string    `json:"difficulty"`
	Importance  float64   `json:"importance"`
}

// Relation is a typed weighted edge between two knowledge points.
type Relation struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// GraphResult is the normalized node/edge payload returned to callers,
// with a per-type histogram for summary display.
type GraphResult struct {
	Nodes         []KnowledgePoint `json:"nodes"`
	Edges         []Relation       `json:"edges"`
	NodeCount     int              `json:"node_count"`
	EdgeCount     int              `json:"edge_count"`
	TypeHistogram map[string]int   `json:"type_histogram"`
}

// SearchHit is one ranked semantic-search result. Source records which
// retrieval path produced it ("vector_search" or "text_search").
type SearchHit struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
	Source    string  `json:"source"`
}
