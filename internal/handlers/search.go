package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/services/search"
)

type SearchHandler struct {
	log *logger.Logger
	svc search.Service
}

func NewSearchHandler(baseLog *logger.Logger, svc search.Service) *SearchHandler {
	return &SearchHandler{
		log: baseLog.With("Handler", "SearchHandler"),
		svc: svc,
	}
}

func (h *SearchHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	hits, err := h.svc.Search(c.Request.Context(), ownerID(c), c.Query("q"), limit)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"results": hits,
		"count":   len(hits),
	})
}
