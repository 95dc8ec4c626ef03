// Package graphquery builds scoped graph retrievals for visualization:
// select or match nodes, expand by hop scope, then normalize the result
// into a clean node/edge payload.
package graphquery

import (
	"context"
	"fmt"

	"github.com/eduforge/knowledge-backend/internal/data/graph"
	"github.com/eduforge/knowledge-backend/internal/normalization"
	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type GraphFilter struct {
	Subject string
	Grade   string
	Topic   string
	Scope   string
	OwnerID string
	Limit   int
}

type Service interface {
	GetGraph(ctx context.Context, f GraphFilter) (*types.GraphResult, error)
}

type service struct {
	store   graph.Store
	cache   Cache
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewService(store graph.Store, cache Cache, metrics *observability.Metrics, baseLog *logger.Logger) Service {
	return &service{
		store:   store,
		cache:   cache,
		metrics: metrics,
		log:     baseLog.With("service", "GraphQueryService"),
	}
}

func (s *service) GetGraph(ctx context.Context, f GraphFilter) (*types.GraphResult, error) {
	if f.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id required", apperr.ErrInvalidArgument)
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	scope := ParseScope(f.Scope)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, f); ok {
			s.metrics.IncGraphQuery(string(scope), "cache_hit")
			return cached, nil
		}
	}

	nodes, err := s.collectNodes(ctx, f, scope)
	if err != nil {
		s.metrics.IncGraphQuery(string(scope), "error")
		// No partial graphs: a half-rendered visualization misleads more
		// than an error does.
		return nil, err
	}

	nodes = normalizeNodes(nodes)

	ids := make([]string, 0, len(nodes))
	idSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
		idSet[n.ID] = true
	}

	var edges []types.Relation
	if len(ids) > 0 {
		edges, err = s.store.EdgesAmong(ctx, f.OwnerID, ids)
		if err != nil {
			s.metrics.IncGraphQuery(string(scope), "error")
			return nil, err
		}
	}
	edges = dedupeAndPruneEdges(edges, idSet)

	histogram := make(map[string]int, 8)
	for _, n := range nodes {
		histogram[n.Type]++
	}

	result := &types.GraphResult{
		Nodes:         nodes,
		Edges:         edges,
		NodeCount:     len(nodes),
		EdgeCount:     len(edges),
		TypeHistogram: histogram,
	}

	if s.cache != nil {
		s.cache.Set(ctx, f, result)
	}
	s.metrics.IncGraphQuery(string(scope), "ok")
	return result, nil
}

// collectNodes runs the select-or-match branch plus the scoped expansion.
func (s *service) collectNodes(ctx context.Context, f GraphFilter, scope Scope) ([]types.KnowledgePoint, error) {
	storeFilter := graph.Filter{
		OwnerID: f.OwnerID,
		Subject: f.Subject,
		Grade:   f.Grade,
		Topic:   f.Topic,
		Limit:   f.Limit,
	}

	if f.Topic == "" {
		return s.store.MatchNodes(ctx, storeFilter)
	}

	matched, err := s.store.MatchNodes(ctx, storeFilter)
	if err != nil {
		return nil, err
	}
	depth := scope.Depth()
	if depth == 0 || len(matched) == 0 {
		return matched, nil
	}

	visited := make(map[string]bool, len(matched))
	seeds := make([]string, 0, len(matched))
	for _, n := range matched {
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true
		seeds = append(seeds, n.ID)
	}

	expandFilter := storeFilter
	expandFilter.Topic = "" // neighbors need not match the topic themselves
	neighbors, err := s.store.ExpandFrom(ctx, seeds, depth, expandFilter)
	if err != nil {
		return nil, err
	}

	out := matched
	for _, n := range neighbors {
		if visited[n.ID] {
			continue
		}
		visited[n.ID] = true
		out = append(out, n)
	}
	return out, nil
}

// normalizeNodes applies the canonical type table and defaults, and drops
// duplicate ids keeping the first occurrence.
func normalizeNodes(nodes []types.KnowledgePoint) []types.KnowledgePoint {
	seen := make(map[string]bool, len(nodes))
	out := make([]types.KnowledgePoint, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		n.Type = normalization.NodeType(n.Type)
		n.Difficulty = normalization.Difficulty(n.Difficulty)
		n.Importance = normalization.Importance(n.Importance, n.Importance >= 0)
		out = append(out, n)
	}
	return out
}

// dedupeAndPruneEdges collapses unordered duplicate pairs and drops edges
// whose endpoints were truncated out of the node set.
func dedupeAndPruneEdges(edges []types.Relation, idSet map[string]bool) []types.Relation {
	seen := make(map[string]bool, len(edges))
	out := make([]types.Relation, 0, len(edges))
	for _, e := range edges {
		if !idSet[e.Source] || !idSet[e.Target] {
			continue
		}
		a, b := e.Source, e.Target
		if b < a {
			a, b = b, a
		}
		key := a + "\x00" + b
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
