package graph

import "fmt"

// All query text lives here as fixed templates. The only dynamic piece is
// the hop depth, a validated integer bounded to [1,2] before substitution;
// user input never reaches the query text, only parameters.

const relTypes = "DEPENDS_ON|RELATES_TO|SIMILAR_TO|PART_OF"

const matchNodesQuery = `
MATCH (n:KnowledgePoint {user_id: $userId})
WHERE ($subject = '' OR n.subject = $subject)
  AND ($grade = '' OR n.grade = $grade)
  AND ($topic = '' OR toLower(n.name) CONTAINS toLower($topic)
       OR any(kw IN coalesce(n.keywords, []) WHERE toLower(kw) CONTAINS toLower($topic)))
RETURN n
LIMIT $limit
`

// expandQueryTemplate re-applies the subject/grade/ownership filter to every
// node along the path, so a neighbor only joins the result if each hop that
// reaches it passes the filter.
const expandQueryTemplate = `
MATCH (m:KnowledgePoint {user_id: $userId})
WHERE m.id IN $seedIds
MATCH p = (m)-[:` + relTypes + `*1..%d]-(n:KnowledgePoint)
WHERE all(x IN nodes(p) WHERE x.user_id = $userId
      AND ($subject = '' OR x.subject = $subject)
      AND ($grade = '' OR x.grade = $grade))
RETURN DISTINCT n
LIMIT $limit
`

const edgesAmongQuery = `
MATCH (a:KnowledgePoint {user_id: $userId})-[r:` + relTypes + `]->(b:KnowledgePoint {user_id: $userId})
WHERE a.id IN $ids AND b.id IN $ids
RETURN a.id AS source, b.id AS target, type(r) AS relType,
       coalesce(r.weight, r.strength, 1.0) AS weight
`

const vectorSearchQuery = `
CALL db.index.vector.queryNodes($indexName, $k, $embedding)
YIELD node, score
WHERE node.user_id = $userId
RETURN node, score
LIMIT $limit
`

const textSearchQuery = `
MATCH (n:KnowledgePoint {user_id: $userId})
WHERE toLower(n.name) CONTAINS toLower($q)
   OR toLower(coalesce(n.description, '')) CONTAINS toLower($q)
RETURN n
LIMIT $limit
`

// expandQuery renders the traversal template for a validated hop depth.
func expandQuery(depth int) (string, error) {
	if depth < 1 || depth > 2 {
		return "", fmt.Errorf("graph: invalid hop depth %d (must be 1 or 2)", depth)
	}
	return fmt.Sprintf(expandQueryTemplate, depth), nil
}
