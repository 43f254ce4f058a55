package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfqa/internal/ai"
	"pdfqa/internal/app"
	"pdfqa/internal/pkg/pdfextract"
	"pdfqa/internal/transport/http/response"
)

type QAService interface {
	Info() string
	Upload(ctx context.Context, input app.UploadInput) (*app.UploadResult, error)
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
}

type QAHandler struct {
	qaService QAService
}

type AskQuestionRequest struct {
	// Question is a pointer so a missing field can be told apart from "".
	Question  *string `json:"question"`
	SessionID string  `json:"session_id"`
}

func NewQAHandler(qaService QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

func (h *QAHandler) Info(c *gin.Context) {
	response.OK(c, gin.H{"message": h.qaService.Info()})
}

func (h *QAHandler) UploadPDF(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "File is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Cannot open uploaded file")
		return
	}
	defer file.Close()

	result, err := h.qaService.Upload(c.Request.Context(), app.UploadInput{
		Filename:  fileHeader.Filename,
		SessionID: c.PostForm("session_id"),
		Body:      file,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *QAHandler) AskQuestion(c *gin.Context) {
	var req AskQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Invalid request payload: question is required")
		return
	}

	result, err := h.qaService.Ask(c.Request.Context(), app.AskInput{
		Question:  *req.Question,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.OK(c, result)
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidFileType):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFileType, "File must be a PDF")
	case errors.Is(err, app.ErrDocumentParse):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentParse, "Error processing PDF: "+parseCause(err))
	case errors.Is(err, app.ErrNoDocument):
		response.Error(c, http.StatusBadRequest, response.CodeNoDocument, "Please upload a PDF first")
	case errors.Is(err, app.ErrInvalidSession):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidSession, "Invalid session ID")
	case errors.Is(err, ai.ErrUnexpectedResponse):
		response.Error(c, http.StatusInternalServerError, response.CodeUnexpectedResponse, "Unexpected response from completion API")
	case errors.Is(err, ai.ErrUpstreamCall):
		response.Error(c, http.StatusInternalServerError, response.CodeUpstreamCall, "Error calling completion API: "+upstreamCause(err))
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error")
	}
}

func parseCause(err error) string {
	var parseErr *pdfextract.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Error()
	}
	return err.Error()
}

func upstreamCause(err error) string {
	var upstreamErr *ai.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Cause != nil {
		return upstreamErr.Cause.Error()
	}
	return err.Error()
}
