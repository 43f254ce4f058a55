package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfqa/internal/ai"
	"pdfqa/internal/app"
	"pdfqa/internal/metrics"
	"pdfqa/internal/model"
	"pdfqa/internal/pkg/pdfextract"
	"pdfqa/internal/pkg/pdfextract/pdftest"
	"pdfqa/internal/session"
	"pdfqa/internal/transport/http/handler"
	"pdfqa/internal/transport/http/response"
)

type countingExtractor struct {
	inner *pdfextract.Extractor
	calls atomic.Int32
}

func (e *countingExtractor) Extract(r io.Reader) (string, error) {
	e.calls.Add(1)
	return e.inner.Extract(r)
}

type provider struct {
	server   *httptest.Server
	calls    atomic.Int32
	lastBody atomic.Value
}

func newProvider(t *testing.T, status int, body string) *provider {
	t.Helper()
	p := &provider{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		p.lastBody.Store(raw)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *provider) request(t *testing.T) ai.CompletionRequest {
	t.Helper()
	raw, ok := p.lastBody.Load().([]byte)
	require.True(t, ok, "provider was not called")
	var req ai.CompletionRequest
	require.NoError(t, json.Unmarshal(raw, &req))
	return req
}

type fixture struct {
	router    *gin.Engine
	extractor *countingExtractor
	provider  *provider
	store     *session.MemoryStore
}

func newFixture(t *testing.T, policy session.KeyPolicy, status int, body string, mutate ...func(*Deps)) *fixture {
	t.Helper()
	prov := newProvider(t, status, body)
	ext := &countingExtractor{inner: pdfextract.NewExtractor()}
	store := session.NewMemoryStore(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := ai.NewCompletionClient(ai.CompletionConfig{
		URL:            prov.server.URL,
		Model:          "test-model",
		DeveloperToken: "test-token",
		Timeout:        5 * time.Second,
	})
	svc := app.NewQAService(ext, store, policy, client, app.WithLogger(logger))

	deps := Deps{
		GinMode: gin.TestMode,
		Logger:  logger,
		QA:      svc,
	}
	for _, m := range mutate {
		m(&deps)
	}
	return &fixture{
		router:    NewRouter(deps),
		extractor: ext,
		provider:  prov,
		store:     store,
	}
}

func (f *fixture) upload(t *testing.T, filename string, content []byte, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if sessionID != "" {
		require.NoError(t, mw.WriteField("session_id", sessionID))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func (f *fixture) ask(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask-question/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func TestInfo(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, res.Code)
	body := decode[map[string]string](t, res)
	assert.Equal(t, app.UsageMessage, body["message"])
}

func TestUploadRejectsNonPDFExtension(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.upload(t, "notes.txt", pdftest.Build("Hello World"), "")

	require.Equal(t, http.StatusBadRequest, res.Code)
	body := decode[response.ErrorBody](t, res)
	assert.Equal(t, "File must be a PDF", body.Detail)
	assert.Equal(t, response.CodeInvalidFileType, body.Code)
	assert.Zero(t, f.extractor.calls.Load())
	assert.Zero(t, f.store.Len())
}

func TestUploadRejectsUppercaseExtension(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.upload(t, "x.PDF", pdftest.Build("Hello World"), "")

	require.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, "File must be a PDF", decode[response.ErrorBody](t, res).Detail)
	assert.Zero(t, f.extractor.calls.Load())
	assert.Zero(t, f.store.Len())
}

func TestUploadWithoutFile(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf/", strings.NewReader("nothing"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Zero(t, f.extractor.calls.Load())
}

func TestUploadMalformedPDF(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.upload(t, "broken.pdf", []byte("definitely not a pdf"), "")

	require.Equal(t, http.StatusBadRequest, res.Code)
	body := decode[response.ErrorBody](t, res)
	assert.True(t, strings.HasPrefix(body.Detail, "Error processing PDF: "), body.Detail)
	assert.Equal(t, response.CodeDocumentParse, body.Code)
	assert.Zero(t, f.store.Len())
}

func TestUploadMultiPageJoinsWithNewlines(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.upload(t, "doc.pdf", pdftest.Build("Page one", "Page two"), "")

	require.Equal(t, http.StatusOK, res.Code)
	body := decode[map[string]any](t, res)
	assert.Equal(t, "PDF processed successfully", body["message"])
	assert.EqualValues(t, len("Page one\nPage two"), body["text_length"])
	assert.NotContains(t, body, "session_id")

	text, err := f.store.Get(context.Background(), session.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "Page one\nPage two", text)
}

func TestHelloWorldScenario(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output": "It says Hello World."}`)

	res := f.upload(t, "hello.pdf", pdftest.Build("Hello World"), "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.EqualValues(t, 11, decode[map[string]any](t, res)["text_length"])

	res = f.ask(t, `{"question":"What does it say?"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, map[string]string{"answer": "It says Hello World."}, decode[map[string]string](t, res))

	sent := f.provider.request(t)
	assert.Equal(t, "What does it say?", sent.Input)
	assert.Equal(t, "test-model", sent.Model)
	assert.Contains(t, sent.System, "Hello World")
}

func TestAskWithoutUploadImplicit(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.ask(t, `{"question":"anything?"}`)

	require.Equal(t, http.StatusBadRequest, res.Code)
	body := decode[response.ErrorBody](t, res)
	assert.Equal(t, "Please upload a PDF first", body.Detail)
	assert.Zero(t, f.provider.calls.Load())
}

func TestAskWithUnknownSessionID(t *testing.T) {
	f := newFixture(t, session.GeneratedPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := f.ask(t, `{"question":"Q","session_id":"nonexistent"}`)

	require.Equal(t, http.StatusBadRequest, res.Code)
	body := decode[response.ErrorBody](t, res)
	assert.Equal(t, "Invalid session ID", body.Detail)
	assert.Equal(t, response.CodeInvalidSession, body.Code)
	assert.Zero(t, f.provider.calls.Load())
}

func TestGeneratedSessionRoundTrip(t *testing.T) {
	f := newFixture(t, session.GeneratedPolicy{}, http.StatusOK, `{"output":"answer"}`)

	res := f.upload(t, "a.pdf", pdftest.Build("Keyed text"), "")
	require.Equal(t, http.StatusOK, res.Code)
	sessionID, _ := decode[map[string]any](t, res)["session_id"].(string)
	require.NotEmpty(t, sessionID)

	res = f.ask(t, `{"question":"Q","session_id":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, f.provider.request(t).System, "Keyed text")
}

func TestCallerSessionUsesSuppliedID(t *testing.T) {
	f := newFixture(t, session.CallerPolicy{}, http.StatusOK, `{"output":"answer"}`)

	res := f.upload(t, "a.pdf", pdftest.Build("Mine"), "my-doc")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "my-doc", decode[map[string]any](t, res)["session_id"])

	res = f.ask(t, `{"question":"Q","session_id":"my-doc"}`)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestReuploadOverwritesImplicitSlot(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"ok"}`)

	require.Equal(t, http.StatusOK, f.upload(t, "a.pdf", pdftest.Build("Old text"), "").Code)
	require.Equal(t, http.StatusOK, f.upload(t, "b.pdf", pdftest.Build("New text"), "").Code)

	res := f.ask(t, `{"question":"Q"}`)
	require.Equal(t, http.StatusOK, res.Code)
	system := f.provider.request(t).System
	assert.Contains(t, system, "New text")
	assert.NotContains(t, system, "Old text")
}

func TestAskUnexpectedProviderResponses(t *testing.T) {
	cases := map[string]string{
		"non json":       `<html>oops</html>`,
		"missing output": `{"result":"x"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, body)
			require.Equal(t, http.StatusOK, f.upload(t, "a.pdf", pdftest.Build("text"), "").Code)

			res := f.ask(t, `{"question":"Q"}`)

			require.Equal(t, http.StatusInternalServerError, res.Code)
			got := decode[response.ErrorBody](t, res)
			assert.Equal(t, "Unexpected response from completion API", got.Detail)
			assert.Equal(t, response.CodeUnexpectedResponse, got.Code)
		})
	}
}

func TestAskProviderErrorStatus(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusBadGateway, `upstream exploded`)
	require.Equal(t, http.StatusOK, f.upload(t, "a.pdf", pdftest.Build("text"), "").Code)

	res := f.ask(t, `{"question":"Q"}`)

	require.Equal(t, http.StatusInternalServerError, res.Code)
	got := decode[response.ErrorBody](t, res)
	assert.True(t, strings.HasPrefix(got.Detail, "Error calling completion API: "), got.Detail)
	assert.Contains(t, got.Detail, "502")
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestAskMalformedJSON(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)

	for _, body := range []string{`{"question":`, `{}`} {
		res := f.ask(t, body)
		assert.Equal(t, http.StatusBadRequest, res.Code, body)
	}
	assert.Zero(t, f.provider.calls.Load())
}

func TestAskAcceptsEmptyQuestion(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`)
	require.Equal(t, http.StatusOK, f.upload(t, "a.pdf", pdftest.Build("text"), "").Code)

	res := f.ask(t, `{"question":""}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "", f.provider.request(t).Input)
}

type fakeHistory struct {
	items []model.QAExchange
	err   error
	key   string
}

func (f *fakeHistory) ListBySessionKey(_ context.Context, key string, _ int) ([]model.QAExchange, error) {
	f.key = key
	return f.items, f.err
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, session.GeneratedPolicy{}, http.StatusOK, `{"output":"x"}`)

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/history/?session_id=abc", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHistoryList(t *testing.T) {
	hist := &fakeHistory{items: []model.QAExchange{{ID: 1, SessionKey: "abc", Question: "Q", Answer: "A"}}}
	f := newFixture(t, session.GeneratedPolicy{}, http.StatusOK, `{"output":"x"}`, func(d *Deps) {
		d.History = hist
	})

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/history/", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/history/?session_id=abc", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "abc", hist.key)
	body := decode[struct {
		Items []model.QAExchange `json:"items"`
	}](t, res)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "A", body.Items[0].Answer)
}

func TestHealthReportsFailingDependency(t *testing.T) {
	health := handler.NewHealthHandler("pdfqa", time.Now(), map[string]handler.Checker{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`, func(d *Deps) {
		d.Health = health
	})

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, res.Body.String(), "connection refused")
}

func TestHealthWithoutDependencies(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`, func(d *Deps) {
		d.Health = handler.NewHealthHandler("pdfqa", time.Now(), nil)
	})

	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, res)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, session.ImplicitPolicy{}, http.StatusOK, `{"output":"x"}`, func(d *Deps) {
		d.Metrics = metrics.New("test")
	})

	f.upload(t, "a.txt", []byte("x"), "")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `pdfqa_http_requests_total`)
	assert.Contains(t, res.Body.String(), `path="/upload-pdf/"`)
}
