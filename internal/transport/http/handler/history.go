package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfqa/internal/model"
	"pdfqa/internal/transport/http/response"
)

type HistoryReader interface {
	ListBySessionKey(ctx context.Context, sessionKey string, limit int) ([]model.QAExchange, error)
}

type HistoryHandler struct {
	reader HistoryReader
}

// NewHistoryHandler accepts a nil reader when history recording is off.
func NewHistoryHandler(reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{reader: reader}
}

func (h *HistoryHandler) List(c *gin.Context) {
	if h.reader == nil {
		response.Error(c, http.StatusNotFound, response.CodeHistoryDisabled, "History is disabled")
		return
	}

	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "session_id is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	items, err := h.reader.ListBySessionKey(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list history failed")
		return
	}
	if items == nil {
		items = []model.QAExchange{}
	}

	response.OK(c, gin.H{"items": items})
}
