// Package ingest drives uploaded documents through the external
// extraction service and tracks their status. Processing is detached
// from the upload request: Submit returns as soon as the document row
// exists, and a background task owns the rest of the lifecycle.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/eduforge/knowledge-backend/internal/clients/aiservice"
	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/ctxutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/repos"
	"github.com/eduforge/knowledge-backend/internal/types"
)

// Extractor is the slice of the downstream client the pipeline needs.
type Extractor interface {
	BuildGraph(ctx context.Context, req aiservice.BuildGraphRequest) (*aiservice.BuildGraphResponse, error)
	DeleteDocumentNodes(ctx context.Context, documentID string) error
}

var _ Extractor = (aiservice.Client)(nil)

// GraphCacheInvalidator drops cached graph reads for an owner once their
// graph changed. Satisfied by the graphquery cache; nil disables it.
type GraphCacheInvalidator interface {
	InvalidateOwner(ctx context.Context, ownerID string)
}

type Pipeline interface {
	// Submit persists the document as pending and schedules background
	// extraction. It never blocks on extraction latency.
	Submit(ctx context.Context, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error)
	Get(ctx context.Context, docID, ownerID uuid.UUID) (*types.KnowledgeDocument, error)
	List(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*types.KnowledgeDocument, int64, error)
	// Delete verifies ownership, kicks off best-effort graph cleanup, and
	// removes the document record regardless of the cleanup outcome.
	Delete(ctx context.Context, docID, ownerID uuid.UUID) error
}

type pipeline struct {
	repo      repos.KnowledgeDocumentRepo
	extractor Extractor
	cache     GraphCacheInvalidator
	metrics   *observability.Metrics
	log       *logger.Logger

	// sem bounds concurrent extractions; acquisition happens inside the
	// background task so Submit itself never waits for a slot.
	sem            *semaphore.Weighted
	extractTimeout time.Duration
	deleteTimeout  time.Duration

	wg sync.WaitGroup
}

func NewPipeline(repo repos.KnowledgeDocumentRepo, extractor Extractor, cache GraphCacheInvalidator, metrics *observability.Metrics, baseLog *logger.Logger) Pipeline {
	maxConcurrent := envutil.Int("INGEST_MAX_CONCURRENT", 8)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &pipeline{
		repo:           repo,
		extractor:      extractor,
		cache:          cache,
		metrics:        metrics,
		log:            baseLog.With("service", "IngestPipeline"),
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		extractTimeout: envutil.Duration("INGEST_EXTRACT_TIMEOUT", 10*time.Minute),
		deleteTimeout:  envutil.Duration("INGEST_DELETE_TIMEOUT", 2*time.Minute),
	}
}

func (p *pipeline) Submit(ctx context.Context, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error) {
	if doc == nil || doc.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: document with owner required", apperr.ErrInvalidArgument)
	}
	doc.Status = types.DocStatusPending

	created, err := p.repo.Create(ctx, nil, doc)
	if err != nil {
		return nil, err
	}

	// Detach from the request context but keep trace correlation.
	bg := context.Background()
	if td := ctxutil.GetTraceData(ctx); td != nil {
		bg = ctxutil.WithTraceData(bg, td)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.recoverToFailed(bg, created.ID)

		if err := p.sem.Acquire(bg, 1); err != nil {
			p.failDocument(bg, created.ID, "ingestion admission aborted: "+err.Error())
			return
		}
		defer p.sem.Release(1)

		p.process(bg, created)
	}()

	return created, nil
}

// process owns the pending -> processing -> {completed, failed} walk for
// one document. It is the only writer of that document's status.
func (p *pipeline) process(ctx context.Context, doc *types.KnowledgeDocument) {
	if err := p.repo.UpdateStatus(ctx, nil, doc.ID, types.DocStatusProcessing, ""); err != nil {
		// No work has started; leaving the document pending is safe.
		p.log.Error("failed to mark document processing", "document_id", doc.ID, "error", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, p.extractTimeout)
	defer cancel()

	resp, err := p.extractor.BuildGraph(callCtx, aiservice.BuildGraphRequest{
		DocumentID: doc.ID.String(),
		UserID:     doc.UserID.String(),
		Content:    doc.Content,
		Title:      doc.Title,
		Subject:    doc.Subject,
		Grade:      doc.Grade,
	})
	if err != nil {
		p.failDocument(ctx, doc.ID, "extraction failed: "+err.Error())
		return
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "extraction rejected by AI service"
		}
		p.failDocument(ctx, doc.ID, msg)
		return
	}

	if err := p.repo.UpdateResult(ctx, nil, doc.ID, types.DocStatusCompleted, resp.EntityCount, resp.RelationCount); err != nil {
		p.log.Error("failed to persist extraction result", "document_id", doc.ID, "error", err)
		p.failDocument(ctx, doc.ID, "failed to persist extraction result")
		return
	}
	p.metrics.IncIngest(types.DocStatusCompleted)
	p.invalidateGraphCache(ctx, doc.UserID)
	p.log.Info("document extraction completed",
		"document_id", doc.ID, "entity_count", resp.EntityCount, "relation_count", resp.RelationCount)
}

func (p *pipeline) Get(ctx context.Context, docID, ownerID uuid.UUID) (*types.KnowledgeDocument, error) {
	doc, err := p.repo.GetByID(ctx, nil, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != ownerID {
		return nil, apperr.ErrForbidden
	}
	return doc, nil
}

func (p *pipeline) List(ctx context.Context, ownerID uuid.UUID, offset, limit int) ([]*types.KnowledgeDocument, int64, error) {
	return p.repo.ListByUser(ctx, nil, ownerID, offset, limit)
}

func (p *pipeline) Delete(ctx context.Context, docID, ownerID uuid.UUID) error {
	doc, err := p.repo.GetByID(ctx, nil, docID)
	if err != nil {
		return err
	}
	if doc.UserID != ownerID {
		return apperr.ErrForbidden
	}

	// Graph-side cleanup is fire-and-forget: eventual consistency is fine,
	// and a failed cleanup must never block the user-visible delete.
	bg := context.Background()
	if td := ctxutil.GetTraceData(ctx); td != nil {
		bg = ctxutil.WithTraceData(bg, td)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("panic during graph node cleanup", "document_id", docID, "panic", r)
			}
		}()
		cleanupCtx, cancel := context.WithTimeout(bg, p.deleteTimeout)
		defer cancel()
		if err := p.extractor.DeleteDocumentNodes(cleanupCtx, docID.String()); err != nil {
			p.log.Warn("graph node cleanup failed (document record removed anyway)",
				"document_id", docID, "error", err)
		}
	}()

	if err := p.repo.DeleteByID(ctx, nil, docID); err != nil {
		return err
	}
	p.invalidateGraphCache(ctx, ownerID)
	return nil
}

// invalidateGraphCache keeps cached graph reads from outliving a graph
// change. The async node cleanup is still covered by the cache TTL.
func (p *pipeline) invalidateGraphCache(ctx context.Context, ownerID uuid.UUID) {
	if p.cache == nil || ownerID == uuid.Nil {
		return
	}
	p.cache.InvalidateOwner(ctx, ownerID.String())
}

// recoverToFailed is the panic barrier around background extraction. A
// document must never stay stuck in processing because a task died.
func (p *pipeline) recoverToFailed(ctx context.Context, docID uuid.UUID) {
	if r := recover(); r != nil {
		p.log.Error("panic during document extraction", "document_id", docID, "panic", r)
		p.failDocument(ctx, docID, "internal error during extraction")
	}
}

func (p *pipeline) failDocument(ctx context.Context, docID uuid.UUID, msg string) {
	if err := p.repo.UpdateStatus(ctx, nil, docID, types.DocStatusFailed, msg); err != nil {
		p.log.Error("failed to mark document failed", "document_id", docID, "error", err)
		return
	}
	p.metrics.IncIngest(types.DocStatusFailed)
}
