package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/eduforge/knowledge-backend/internal/pkg/apperr"
)

func respondStatus(t *testing.T, err error) (int, ErrorEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondAppError(c, err)

	var envelope ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not an error envelope: %v", err)
	}
	return w.Code, envelope
}

func TestRespondAppErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{fmt.Errorf("%w: bad scope", apperr.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
		{apperr.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.New("neo4j down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, envelope := respondStatus(t, tc.err)
		if status != tc.wantStatus {
			t.Fatalf("err %v mapped to %d, want %d", tc.err, status, tc.wantStatus)
		}
		if envelope.Error.Code != tc.wantCode {
			t.Fatalf("err %v got code %q, want %q", tc.err, envelope.Error.Code, tc.wantCode)
		}
	}
}
