// Package search serves semantic retrieval over the knowledge graph with
// a keyword fallback, so search stays available when the embedding
// provider is down.
package search

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/eduforge/knowledge-backend/internal/clients/aiservice"
	"github.com/eduforge/knowledge-backend/internal/data/graph"
	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

const (
	SourceVector = "vector_search"
	SourceText   = "text_search"

	defaultLimit   = 10
	maxLimit       = 100
	snippetMaxLen  = 160
	vectorBaseRel  = 0.9
	vectorRelSlope = 0.05
)

// Embedder is the slice of the downstream client this service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

var _ Embedder = (aiservice.Client)(nil)

type Service interface {
	Search(ctx context.Context, ownerID, query string, limit int) ([]types.SearchHit, error)
}

type service struct {
	embedder Embedder
	store    graph.Store
	metrics  *observability.Metrics
	log      *logger.Logger
}

func NewService(embedder Embedder, store graph.Store, metrics *observability.Metrics, baseLog *logger.Logger) Service {
	return &service{
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		log:      baseLog.With("service", "SemanticSearchService"),
	}
}

func (s *service) Search(ctx context.Context, ownerID, query string, limit int) ([]types.SearchHit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", apperr.ErrInvalidArgument)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: query required", apperr.ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		// Availability beats ranking quality: any embedding failure
		// downgrades to keyword search instead of failing the request.
		s.log.Warn("embedding failed, falling back to text search", "error", err)
		return s.textSearch(ctx, ownerID, query, limit)
	}

	nodes, err := s.store.VectorSearch(ctx, ownerID, embedding, limit)
	if err != nil {
		return nil, err
	}
	s.metrics.IncSearch(SourceVector)

	hits := make([]types.SearchHit, 0, len(nodes))
	for rank, n := range nodes {
		rel := vectorBaseRel - vectorRelSlope*float64(rank)
		if rel < 0 {
			rel = 0
		}
		hits = append(hits, types.SearchHit{
			ID:        n.ID,
			Name:      n.Name,
			Snippet:   snippet(n.Description),
			Relevance: rel,
			Source:    SourceVector,
		})
	}
	return hits, nil
}

func (s *service) textSearch(ctx context.Context, ownerID, query string, limit int) ([]types.SearchHit, error) {
	nodes, err := s.store.TextSearch(ctx, ownerID, query, limit)
	if err != nil {
		return nil, err
	}
	s.metrics.IncSearch(SourceText)

	hits := make([]types.SearchHit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, types.SearchHit{
			ID:      n.ID,
			Name:    n.Name,
			Snippet: snippet(n.Description),
			// No ranking signal without embeddings; every hit scores flat.
			Relevance: 1.0,
			Source:    SourceText,
		})
	}
	return hits, nil
}

func snippet(description string) string {
	if len(description) <= snippetMaxLen {
		return description
	}
	// Back up to a rune boundary so the cut never tears a UTF-8 sequence.
	cut := snippetMaxLen
	for cut > 0 && !utf8.RuneStart(description[cut]) {
		cut--
	}
	return description[:cut] + "..."
}
