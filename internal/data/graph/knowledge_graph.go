// Package graph issues the Cypher queries behind graph retrieval. All
// reads are hard-filtered by the owning user id; nothing in this package
// mutates nodes (the external extraction service owns graph writes).
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/eduforge/knowledge-backend/internal/pkg/ctxutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/platform/neo4jdb"
	"github.com/eduforge/knowledge-backend/internal/types"
)

// Filter narrows node selection. Empty Subject/Grade/Topic act as
// wildcards; Limit caps the number of returned nodes.
type Filter struct {
	OwnerID string
	Subject string
	Grade   string
	Topic   string
	Limit   int
}

type Store interface {
	MatchNodes(ctx context.Context, f Filter) ([]types.KnowledgePoint, error)
	ExpandFrom(ctx context.Context, seedIDs []string, depth int, f Filter) ([]types.KnowledgePoint, error)
	EdgesAmong(ctx context.Context, ownerID string, nodeIDs []string) ([]types.Relation, error)
	VectorSearch(ctx context.Context, ownerID string, embedding []float64, limit int) ([]types.KnowledgePoint, error)
	TextSearch(ctx context.Context, ownerID, query string, limit int) ([]types.KnowledgePoint, error)
}

type store struct {
	client    *neo4jdb.Client
	log       *logger.Logger
	indexName string
}

func NewStore(client *neo4jdb.Client, baseLog *logger.Logger) Store {
	return &store{
		client:    client,
		log:       baseLog.With("store", "KnowledgeGraph"),
		indexName: envutil.String("NEO4J_VECTOR_INDEX", "knowledge_point_embedding"),
	}
}

// EnsureSchema creates the indexes retrieval relies on. Best-effort: a
// restricted database user may not be allowed to run DDL.
func EnsureSchema(ctx context.Context, client *neo4jdb.Client, log *logger.Logger) {
	if client == nil || client.Driver == nil {
		return
	}
	ctx = ctxutil.Default(ctx)
	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT knowledge_point_id_unique IF NOT EXISTS FOR (n:KnowledgePoint) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX knowledge_point_user_idx IF NOT EXISTS FOR (n:KnowledgePoint) ON (n.user_id)`,
		`CREATE INDEX knowledge_point_document_idx IF NOT EXISTS FOR (n:KnowledgePoint) ON (n.document_id)`,
		`CREATE INDEX knowledge_point_name_idx IF NOT EXISTS FOR (n:KnowledgePoint) ON (n.name)`,
		`CREATE INDEX knowledge_point_subject_grade_idx IF NOT EXISTS FOR (n:KnowledgePoint) ON (n.subject, n.grade)`,
	}
	for _, stmt := range stmts {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (s *store) MatchNodes(ctx context.Context, f Filter) ([]types.KnowledgePoint, error) {
	params := map[string]any{
		"userId":  f.OwnerID,
		"subject": f.Subject,
		"grade":   f.Grade,
		"topic":   f.Topic,
		"limit":   int64(f.Limit),
	}
	return s.readNodes(ctx, matchNodesQuery, params)
}

func (s *store) ExpandFrom(ctx context.Context, seedIDs []string, depth int, f Filter) ([]types.KnowledgePoint, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	query, err := expandQuery(depth)
	if err != nil {
		return nil, err
	}
	params := map[string]any{
		"userId":  f.OwnerID,
		"subject": f.Subject,
		"grade":   f.Grade,
		"seedIds": seedIDs,
		"limit":   int64(f.Limit),
	}
	return s.readNodes(ctx, query, params)
}

func (s *store) EdgesAmong(ctx context.Context, ownerID string, nodeIDs []string) ([]types.Relation, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	ctx = ctxutil.Default(ctx)
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, edgesAmongQuery, map[string]any{
			"userId": ownerID,
			"ids":    nodeIDs,
		})
		if err != nil {
			return nil, err
		}
		var edges []types.Relation
		for res.Next(ctx) {
			rec := res.Record()
			edges = append(edges, types.Relation{
				Source: stringValue(rec, "source"),
				Target: stringValue(rec, "target"),
				Type:   stringValue(rec, "relType"),
				Weight: floatValue(rec, "weight", 1.0),
			})
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: edges among: %w", err)
	}
	edges, _ := result.([]types.Relation)
	return edges, nil
}

func (s *store) VectorSearch(ctx context.Context, ownerID string, embedding []float64, limit int) ([]types.KnowledgePoint, error) {
	if limit <= 0 {
		limit = 10
	}
	// Over-fetch before the ownership filter so the post-YIELD WHERE does
	// not starve the result set.
	k := limit * 4
	params := map[string]any{
		"indexName": s.indexName,
		"k":         int64(k),
		"embedding": embedding,
		"userId":    ownerID,
		"limit":     int64(limit),
	}
	return s.readNodes(ctx, vectorSearchQuery, params)
}

func (s *store) TextSearch(ctx context.Context, ownerID, query string, limit int) ([]types.KnowledgePoint, error) {
	if limit <= 0 {
		limit = 10
	}
	params := map[string]any{
		"userId": ownerID,
		"q":      query,
		"limit":  int64(limit),
	}
	return s.readNodes(ctx, textSearchQuery, params)
}

func (s *store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
}

func (s *store) readNodes(ctx context.Context, query string, params map[string]any) ([]types.KnowledgePoint, error) {
	ctx = ctxutil.Default(ctx)
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var nodes []types.KnowledgePoint
		for res.Next(ctx) {
			rec := res.Record()
			raw, ok := rec.Get("n")
			if !ok {
				raw, ok = rec.Get("node")
			}
			if !ok {
				continue
			}
			node, ok := raw.(neo4j.Node)
			if !ok {
				continue
			}
			nodes = append(nodes, nodeToKnowledgePoint(node))
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: query: %w", err)
	}
	nodes, _ := result.([]types.KnowledgePoint)
	return nodes, nil
}

// nodeToKnowledgePoint maps raw node properties onto the DTO. Type/difficulty
// normalization happens later in the query engine; this stays a dumb copy.
func nodeToKnowledgePoint(node neo4j.Node) types.KnowledgePoint {
	props := node.Props
	kp := types.KnowledgePoint{
		ID:          stringProp(props, "id"),
		Name:        stringProp(props, "name"),
		Type:        stringProp(props, "type"),
		Subject:     stringProp(props, "subject"),
		Grade:       stringProp(props, "grade"),
		Description: stringProp(props, "description"),
		Keywords:    stringSliceProp(props, "keywords"),
		UserID:      stringProp(props, "user_id"),
		DocumentID:  stringProp(props, "document_id"),
		Difficulty:  stringProp(props, "difficulty"),
	}
	if v, ok := props["importance"]; ok {
		switch n := v.(type) {
		case float64:
			kp.Importance = n
		case int64:
			kp.Importance = float64(n)
		}
	} else {
		kp.Importance = -1 // sentinel: engine applies the default
	}
	if v, ok := props["embedding"]; ok {
		if arr, ok := v.([]any); ok {
			kp.Embedding = make([]float64, 0, len(arr))
			for _, e := range arr {
				if f, ok := e.(float64); ok {
					kp.Embedding = append(kp.Embedding, f)
				}
			}
		}
	}
	return kp
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringSliceProp(props map[string]any, key string) []string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(rec *neo4j.Record, key string) string {
	if v, ok := rec.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatValue(rec *neo4j.Record, key string, def float64) float64 {
	if v, ok := rec.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		}
	}
	return def
}
