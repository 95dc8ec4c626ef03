package graphquery

import (
	"context"
	"errors"
	"testing"

	"github.com/eduforge/knowledge-backend/internal/data/graph"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

type fakeStore struct {
	matchNodes  []types.KnowledgePoint
	matchErr    error
	expandNodes []types.KnowledgePoint
	expandErr   error
	edges       []types.Relation
	edgesErr    error

	matchCalls  []graph.Filter
	expandDepth int
	expandSeeds []string
	expandCalls int
	edgesIDs    []string
}

func (f *fakeStore) MatchNodes(ctx context.Context, flt graph.Filter) ([]types.KnowledgePoint, error) {
	f.matchCalls = append(f.matchCalls, flt)
	return f.matchNodes, f.matchErr
}

func (f *fakeStore) ExpandFrom(ctx context.Context, seedIDs []string, depth int, flt graph.Filter) ([]types.KnowledgePoint, error) {
	f.expandCalls++
	f.expandSeeds = seedIDs
	f.expandDepth = depth
	return f.expandNodes, f.expandErr
}

func (f *fakeStore) EdgesAmong(ctx context.Context, ownerID string, nodeIDs []string) ([]types.Relation, error) {
	f.edgesIDs = nodeIDs
	return f.edges, f.edgesErr
}

func (f *fakeStore) VectorSearch(ctx context.Context, ownerID string, embedding []float64, limit int) ([]types.KnowledgePoint, error) {
	return nil, nil
}

func (f *fakeStore) TextSearch(ctx context.Context, ownerID, query string, limit int) ([]types.KnowledgePoint, error) {
	return nil, nil
}

func newEngine(t *testing.T, store graph.Store) Service {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewService(store, nil, nil, log)
}

func kp(id, name string) types.KnowledgePoint {
	return types.KnowledgePoint{ID: id, Name: name, Type: "concept", Importance: -1}
}

func TestMatchedScopeSkipsExpansion(t *testing.T) {
	store := &fakeStore{matchNodes: []types.KnowledgePoint{kp("a", "Fractions")}}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{
		OwnerID: "u1", Topic: "fractions", Scope: "matched",
	})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if store.expandCalls != 0 {
		t.Fatalf("matched scope must not expand, got %d expand calls", store.expandCalls)
	}
	if result.NodeCount != 1 || result.Nodes[0].ID != "a" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInvalidScopeNormalizesToOneHop(t *testing.T) {
	store := &fakeStore{matchNodes: []types.KnowledgePoint{kp("a", "A")}}
	svc := newEngine(t, store)

	if _, err := svc.GetGraph(context.Background(), GraphFilter{
		OwnerID: "u1", Topic: "a", Scope: "definitely-not-a-scope",
	}); err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if store.expandCalls != 1 || store.expandDepth != 1 {
		t.Fatalf("invalid scope should expand one hop, calls=%d depth=%d", store.expandCalls, store.expandDepth)
	}
}

func TestTwoHopExpansion(t *testing.T) {
	store := &fakeStore{
		matchNodes:  []types.KnowledgePoint{kp("a", "Fractions")},
		expandNodes: []types.KnowledgePoint{kp("b", "Decimals"), kp("c", "Percentages")},
		edges: []types.Relation{
			{Source: "a", Target: "b", Type: types.RelRelatesTo, Weight: 1},
			{Source: "b", Target: "c", Type: types.RelDependsOn, Weight: 1},
		},
	}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{
		OwnerID: "u1", Topic: "fractions", Scope: "two_hop",
	})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if store.expandDepth != 2 {
		t.Fatalf("expected depth 2, got %d", store.expandDepth)
	}
	if len(store.expandSeeds) != 1 || store.expandSeeds[0] != "a" {
		t.Fatalf("expected seeds [a], got %v", store.expandSeeds)
	}
	if result.NodeCount != 3 || result.EdgeCount != 2 {
		t.Fatalf("expected 3 nodes / 2 edges, got %d/%d", result.NodeCount, result.EdgeCount)
	}
}

func TestEmptyTopicSelectsWithoutMatching(t *testing.T) {
	store := &fakeStore{matchNodes: []types.KnowledgePoint{kp("a", "A"), kp("b", "B")}}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{OwnerID: "u1", Scope: "one_hop"})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if store.expandCalls != 0 {
		t.Fatalf("empty topic must not expand")
	}
	if result.NodeCount != 2 {
		t.Fatalf("expected 2 nodes, got %d", result.NodeCount)
	}
	if got := store.matchCalls[0].Limit; got != defaultLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLimit, got)
	}
}

func TestNodeDedupFirstWins(t *testing.T) {
	dup := kp("a", "A")
	dup.Description = "duplicate"
	store := &fakeStore{
		matchNodes:  []types.KnowledgePoint{kp("a", "A")},
		expandNodes: []types.KnowledgePoint{dup, kp("b", "B")},
	}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{
		OwnerID: "u1", Topic: "a", Scope: "one_hop",
	})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if result.NodeCount != 2 {
		t.Fatalf("expected dedup to 2 nodes, got %d", result.NodeCount)
	}
	for _, n := range result.Nodes {
		if n.ID == "a" && n.Description == "duplicate" {
			t.Fatalf("first occurrence should win, got later duplicate")
		}
	}
}

func TestEdgeDedupAndDanglingPrune(t *testing.T) {
	store := &fakeStore{
		matchNodes: []types.KnowledgePoint{kp("a", "A"), kp("b", "B")},
		edges: []types.Relation{
			{Source: "a", Target: "b", Type: types.RelRelatesTo},
			{Source: "b", Target: "a", Type: types.RelRelatesTo}, // reversed duplicate
			{Source: "a", Target: "ghost", Type: types.RelDependsOn},
		},
	}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if result.EdgeCount != 1 {
		t.Fatalf("expected 1 edge after dedup+prune, got %d: %+v", result.EdgeCount, result.Edges)
	}
	e := result.Edges[0]
	if e.Source != "a" || e.Target != "b" {
		t.Fatalf("unexpected surviving edge: %+v", e)
	}
}

func TestNormalizationDefaults(t *testing.T) {
	raw := types.KnowledgePoint{ID: "a", Name: "A", Type: "theorem", Importance: -1}
	store := &fakeStore{matchNodes: []types.KnowledgePoint{raw}}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{OwnerID: "u1"})
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	n := result.Nodes[0]
	if n.Type != "Principle" {
		t.Fatalf("alias normalization missing, got type %q", n.Type)
	}
	if n.Difficulty != "medium" {
		t.Fatalf("expected default difficulty, got %q", n.Difficulty)
	}
	if n.Importance != 0.5 {
		t.Fatalf("expected default importance, got %v", n.Importance)
	}
	if result.TypeHistogram["Principle"] != 1 {
		t.Fatalf("histogram missing normalized type: %v", result.TypeHistogram)
	}
}

func TestStoreErrorPropagatesWithoutPartialResult(t *testing.T) {
	store := &fakeStore{matchErr: errors.New("neo4j down")}
	svc := newEngine(t, store)

	result, err := svc.GetGraph(context.Background(), GraphFilter{OwnerID: "u1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if result != nil {
		t.Fatalf("no partial results allowed, got %+v", result)
	}
}

func TestMissingOwnerRejected(t *testing.T) {
	svc := newEngine(t, &fakeStore{})
	if _, err := svc.GetGraph(context.Background(), GraphFilter{}); err == nil {
		t.Fatalf("expected owner validation error")
	}
}
