package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

type KnowledgeDocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.KnowledgeDocument, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.KnowledgeDocument, int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, errMsg string) error
	UpdateResult(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, entityCount, relationCount int) error
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type knowledgeDocumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeDocumentRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeDocumentRepo {
	return &knowledgeDocumentRepo{db: db, log: baseLog.With("repo", "KnowledgeDocumentRepo")}
}

func (r *knowledgeDocumentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if doc == nil {
		return nil, apperr.ErrInvalidArgument
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = types.DocStatusPending
	}

	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *knowledgeDocumentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.KnowledgeDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.KnowledgeDocument
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

func (r *knowledgeDocumentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, offset, limit int) ([]*types.KnowledgeDocument, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.KnowledgeDocument{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.KnowledgeDocument
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (r *knowledgeDocumentRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, errMsg string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.KnowledgeDocument{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    status,
			"error_msg": errMsg,
		}).Error
}

func (r *knowledgeDocumentRepo) UpdateResult(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string, entityCount, relationCount int) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.KnowledgeDocument{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         status,
			"entity_count":   entityCount,
			"relation_count": relationCount,
			"error_msg":      "",
		}).Error
}

func (r *knowledgeDocumentRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.KnowledgeDocument{}).Error
}
