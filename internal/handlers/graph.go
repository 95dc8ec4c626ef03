package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/services/graphquery"
)

type GraphHandler struct {
	log *logger.Logger
	svc graphquery.Service
}

func NewGraphHandler(baseLog *logger.Logger, svc graphquery.Service) *GraphHandler {
	return &GraphHandler{
		log: baseLog.With("Handler", "GraphHandler"),
		svc: svc,
	}
}

// Get serves a filtered subgraph. Unknown scope values fall back to one
// hop inside the service, so the handler passes scope through untouched.
func (h *GraphHandler) Get(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.svc.GetGraph(c.Request.Context(), graphquery.GraphFilter{
		OwnerID: ownerID(c),
		Subject: c.Query("subject"),
		Grade:   c.Query("grade"),
		Topic:   c.Query("topic"),
		Scope:   c.Query("scope"),
		Limit:   limit,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondOK(c, result)
}
