package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"pdfqa/internal/ai"
	"pdfqa/internal/model"
	"pdfqa/internal/session"
)

const (
	UsageMessage   = "Welcome to PDF Analysis API. Use /upload-pdf/ to upload a PDF and /ask-question/ to ask questions about it."
	UploadMessage  = "PDF processed successfully"
	pdfFileSuffix  = ".pdf"
	outcomeOK      = "ok"
	outcomeInvalid = "invalid_type"
	outcomeParse   = "parse_error"
	outcomeStore   = "store_error"
)

var (
	ErrInvalidFileType = errors.New("file must be a pdf")
	ErrDocumentParse   = errors.New("error processing pdf")
	ErrNoDocument      = errors.New("no document uploaded")
	ErrInvalidSession  = errors.New("invalid session id")
	ErrStore           = errors.New("session store failed")
)

type Extractor interface {
	Extract(r io.Reader) (string, error)
}

type Completion interface {
	Ask(ctx context.Context, question, documentText string) (string, error)
	Model() string
}

type HistoryPublisher interface {
	Publish(ctx context.Context, exchange model.QAExchange) error
}

type Observer interface {
	RecordUpload(outcome string, textLength int)
	RecordCompletion(outcome string, duration time.Duration)
}

type UploadInput struct {
	Filename  string
	SessionID string
	Body      io.Reader
}

type UploadResult struct {
	Message    string `json:"message"`
	TextLength int    `json:"text_length"`
	SessionID  string `json:"session_id,omitempty"`
}

type AskInput struct {
	Question  string
	SessionID string
}

type AskResult struct {
	Answer string `json:"answer"`
}

type QAService struct {
	extractor  Extractor
	store      session.Store
	policy     session.KeyPolicy
	completion Completion
	publisher  HistoryPublisher
	observer   Observer
	logger     *slog.Logger
}

type Option func(*QAService)

// WithHistoryPublisher records every answered question through p.
func WithHistoryPublisher(p HistoryPublisher) Option {
	return func(s *QAService) {
		s.publisher = p
	}
}

func WithObserver(o Observer) Option {
	return func(s *QAService) {
		s.observer = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewQAService(
	extractor Extractor,
	store session.Store,
	policy session.KeyPolicy,
	completion Completion,
	opts ...Option,
) *QAService {
	s := &QAService{
		extractor:  extractor,
		store:      store,
		policy:     policy,
		completion: completion,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *QAService) Info() string {
	return UsageMessage
}

func (s *QAService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if !strings.HasSuffix(input.Filename, pdfFileSuffix) {
		s.recordUpload(outcomeInvalid, 0)
		return nil, ErrInvalidFileType
	}

	text, err := s.extractor.Extract(input.Body)
	if err != nil {
		s.recordUpload(outcomeParse, 0)
		s.logger.WarnContext(ctx, "pdf extraction failed", "filename", input.Filename, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDocumentParse, err)
	}

	key := s.policy.UploadKey(input.SessionID)
	if err := s.store.Put(ctx, key, text); err != nil {
		s.recordUpload(outcomeStore, 0)
		s.logger.ErrorContext(ctx, "store document failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	length := utf8.RuneCountInString(text)
	s.recordUpload(outcomeOK, length)
	s.logger.InfoContext(ctx, "pdf processed", "filename", input.Filename, "text_length", length)

	result := &UploadResult{
		Message:    UploadMessage,
		TextLength: length,
	}
	if s.policy.Exposed() {
		result.SessionID = key
	}
	return result, nil
}

func (s *QAService) Ask(ctx context.Context, input AskInput) (*AskResult, error) {
	key, err := s.policy.AskKey(input.SessionID)
	if err != nil {
		return nil, ErrInvalidSession
	}

	text, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.ErrorContext(ctx, "load document failed", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if s.policy.Exposed() {
			return nil, ErrInvalidSession
		}
		return nil, ErrNoDocument
	}

	start := time.Now()
	answer, err := s.completion.Ask(ctx, input.Question, text)
	if err != nil {
		s.recordCompletion(completionOutcome(err), time.Since(start))
		s.logger.ErrorContext(ctx, "completion call failed", "error", err)
		return nil, err
	}
	s.recordCompletion(outcomeOK, time.Since(start))

	s.publishExchange(ctx, model.QAExchange{
		SessionKey: key,
		Question:   input.Question,
		Answer:     answer,
		Model:      s.completion.Model(),
		TextLength: utf8.RuneCountInString(text),
		CreatedAt:  time.Now(),
	})

	return &AskResult{Answer: answer}, nil
}

func (s *QAService) publishExchange(ctx context.Context, exchange model.QAExchange) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, exchange); err != nil {
		s.logger.WarnContext(ctx, "publish qa exchange failed", "session_key", exchange.SessionKey, "error", err)
	}
}

func (s *QAService) recordUpload(outcome string, length int) {
	if s.observer != nil {
		s.observer.RecordUpload(outcome, length)
	}
}

func (s *QAService) recordCompletion(outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.RecordCompletion(outcome, d)
	}
}

func completionOutcome(err error) string {
	switch {
	case ai.IsCircuitOpen(err):
		return "circuit_open"
	case errors.Is(err, ai.ErrUnexpectedResponse):
		return "unexpected_response"
	default:
		return "upstream_error"
	}
}
