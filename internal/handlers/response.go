package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
	"github.com/eduforge/knowledge-backend/internal/requestdata"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError maps the shared error sentinels onto HTTP statuses so
// every handler reports validation, ownership, and missing-resource
// failures the same way.
func RespondAppError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, apperr.ErrForbidden):
		RespondError(c, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// ownerID yields the authenticated caller as a string, empty when the
// request carries no identity so owner validation in the services fires.
func ownerID(c *gin.Context) string {
	id := requestdata.UserID(c.Request.Context())
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
