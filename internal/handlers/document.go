package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/requestdata"
	"github.com/eduforge/knowledge-backend/internal/services/ingest"
	"github.com/eduforge/knowledge-backend/internal/types"
)

type DocumentHandler struct {
	log      *logger.Logger
	pipeline ingest.Pipeline
}

func NewDocumentHandler(baseLog *logger.Logger, pipeline ingest.Pipeline) *DocumentHandler {
	return &DocumentHandler{
		log:      baseLog.With("Handler", "DocumentHandler"),
		pipeline: pipeline,
	}
}

type uploadDocumentRequest struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content" binding:"required"`
	Subject  string `json:"subject"`
	Grade    string `json:"grade"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// Upload accepts a document as JSON or multipart form and returns
// immediately with the pending record. Extraction happens in the
// background; poll Status to follow it.
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req uploadDocumentRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := bindMultipartDocument(c, &req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	userID := requestdata.UserID(c.Request.Context())
	if userID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing authenticated user"))
		return
	}

	doc, err := h.pipeline.Submit(c.Request.Context(), &types.KnowledgeDocument{
		UserID:   userID,
		Title:    req.Title,
		Content:  req.Content,
		Subject:  req.Subject,
		Grade:    req.Grade,
		FileName: req.FileName,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

// maxUploadBytes bounds the text payload read from a multipart file.
const maxUploadBytes = 10 << 20

func bindMultipartDocument(c *gin.Context, req *uploadDocumentRequest) error {
	req.Title = c.PostForm("title")
	req.Subject = c.PostForm("subject")
	req.Grade = c.PostForm("grade")
	req.Content = c.PostForm("content")

	if fileHeader, err := c.FormFile("file"); err == nil {
		f, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		req.Content = string(raw)
		req.FileName = fileHeader.Filename
		req.FileType = fileHeader.Header.Get("Content-Type")
		req.FileSize = fileHeader.Size
		if req.Title == "" {
			req.Title = fileHeader.Filename
		}
	}

	if req.Title == "" || req.Content == "" {
		return fmt.Errorf("title and content (or a file part) are required")
	}
	return nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID := requestdata.UserID(c.Request.Context())
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	docs, total, err := h.pipeline.List(c.Request.Context(), userID, offset, limit)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("%w: document id must be a uuid", apperr.ErrInvalidArgument))
		return
	}
	doc, err := h.pipeline.Get(c.Request.Context(), docID, requestdata.UserID(c.Request.Context()))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, doc)
}

// Status is the polling endpoint for extraction progress. It carries the
// terminal failure message so clients can show why a document failed.
func (h *DocumentHandler) Status(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("%w: document id must be a uuid", apperr.ErrInvalidArgument))
		return
	}
	doc, err := h.pipeline.Get(c.Request.Context(), docID, requestdata.UserID(c.Request.Context()))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"id":             doc.ID,
		"status":         doc.Status,
		"entity_count":   doc.EntityCount,
		"relation_count": doc.RelationCount,
		"error_msg":      doc.ErrorMsg,
		"terminal":       types.IsTerminalStatus(doc.Status),
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("%w: document id must be a uuid", apperr.ErrInvalidArgument))
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), docID, requestdata.UserID(c.Request.Context())); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}
