package repos

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

func newTestRepo(t *testing.T) KnowledgeDocumentRepo {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&types.KnowledgeDocument{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewKnowledgeDocumentRepo(gdb, log)
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doc, err := repo.Create(ctx, nil, &types.KnowledgeDocument{
		UserID:  uuid.New(),
		Title:   "Fractions basics",
		Content: "a/b where b != 0",
		Subject: "math",
		Grade:   "grade5",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if doc.Status != types.DocStatusPending {
		t.Fatalf("expected pending default, got %q", doc.Status)
	}

	got, err := repo.GetByID(ctx, nil, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Fractions basics" || got.Subject != "math" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetByID(context.Background(), nil, uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusAndResultUpdates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doc, err := repo.Create(ctx, nil, &types.KnowledgeDocument{UserID: uuid.New(), Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.UpdateStatus(ctx, nil, doc.ID, types.DocStatusProcessing, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := repo.GetByID(ctx, nil, doc.ID)
	if got.Status != types.DocStatusProcessing {
		t.Fatalf("expected processing, got %q", got.Status)
	}

	if err := repo.UpdateResult(ctx, nil, doc.ID, types.DocStatusCompleted, 5, 3); err != nil {
		t.Fatalf("update result: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, doc.ID)
	if got.Status != types.DocStatusCompleted || got.EntityCount != 5 || got.RelationCount != 3 {
		t.Fatalf("unexpected result fields: %+v", got)
	}

	if err := repo.UpdateStatus(ctx, nil, doc.ID, types.DocStatusFailed, "boom"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = repo.GetByID(ctx, nil, doc.ID)
	if got.ErrorMsg != "boom" {
		t.Fatalf("expected error message persisted, got %q", got.ErrorMsg)
	}
}

func TestListByUserScoping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, nil, &types.KnowledgeDocument{UserID: owner, Title: "mine"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, nil, &types.KnowledgeDocument{UserID: other, Title: "theirs"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	docs, total, err := repo.ListByUser(ctx, nil, owner, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(docs) != 3 {
		t.Fatalf("expected 3 owned docs, got total=%d len=%d", total, len(docs))
	}
	for _, d := range docs {
		if d.UserID != owner {
			t.Fatalf("cross-user leakage in list: %+v", d)
		}
	}
}

func TestDeleteByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	doc, err := repo.Create(ctx, nil, &types.KnowledgeDocument{UserID: uuid.New(), Title: "t"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.DeleteByID(ctx, nil, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, nil, doc.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
