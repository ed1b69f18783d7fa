package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/dataset"
	"ragd/internal/domain"
	"ragd/internal/embedding/tfidf"
	"ragd/internal/engine"
	"ragd/internal/ingest"
	"ragd/internal/models"
	"ragd/internal/progress"
	"ragd/internal/service"
	"ragd/internal/workerpool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	svc    *service.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	tracker := progress.NewTracker(nil)
	cache := models.NewCache(tracker, func(string) (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil, nil)
	factory := engine.Factory(engine.Options{})
	uploadDir := t.TempDir()
	reg := dataset.NewRegistry(domain.EngineConfig{WorkingDir: t.TempDir(), RetrievalTopK: 5}, uploadDir, cache, factory, nil)
	pool, err := workerpool.New("indexing", workerpool.Config{Capacity: 1, Nonblocking: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Release(time.Second) })

	svc := service.New(service.Deps{Tracker: tracker, Models: cache, Registry: reg, NewEngine: factory, IndexPool: pool})
	h := NewHandler(svc, ingest.NewStore(uploadDir, 1<<20, nil, nil), 1<<20, 5, nil)
	return &testAPI{router: NewRouter(h, nil), svc: svc}
}

func (a *testAPI) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func jsonRequest(method, path string, v any) *http.Request {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func uploadRequest(t *testing.T, datasetName, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("dataset_name", datasetName))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAPI_UploadIndexQueryFlow(t *testing.T) {
	a := newTestAPI(t)

	w, body := a.do(t, uploadRequest(t, "wiki5", "corpus.json", `["doc1 text", "doc2 text"]`))
	require.Equal(t, http.StatusOK, w.Code, body)
	assert.Equal(t, float64(2), body["chunks_count"])

	w, body = a.do(t, formRequest("/api/index", url.Values{"dataset_name": {"wiki5"}, "config_data": {`{"retrieval_top_k": 3}`}}))
	require.Equal(t, http.StatusAccepted, w.Code, body)
	assert.Equal(t, float64(2), body["documents_count"])

	task := a.svc.Task()
	if task != nil {
		require.NoError(t, task.Wait(context.Background()))
	}
	require.Eventually(t, func() bool { return a.svc.Progress().Status == domain.StatusCompleted }, 2*time.Second, 10*time.Millisecond)

	w, body = a.do(t, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Contains(t, body, "elapsed_time")

	useLLM := false
	w, body = a.do(t, jsonRequest(http.MethodPost, "/api/query", QueryRequest{Question: "What is doc1 about?", TopK: 1, UseLLM: &useLLM}))
	require.Equal(t, http.StatusOK, w.Code, body)
	docs := body["retrieved_documents"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1 text", docs[0].(map[string]any)["content"])
	assert.Nil(t, body["answer"])

	w, body = a.do(t, jsonRequest(http.MethodPost, "/api/query/batch", BatchQueryRequest{Questions: []string{"doc2", "doc1"}, TopK: 1, UseLLM: &useLLM}))
	require.Equal(t, http.StatusOK, w.Code, body)
	results := body["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "doc2", results[0].(map[string]any)["question"])

	w, body = a.do(t, httptest.NewRequest(http.MethodGet, "/api/datasets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"wiki5"}, body["datasets"])

	w, body = a.do(t, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wiki5", body["current_dataset"])

	w, _ = a.do(t, httptest.NewRequest(http.MethodPost, "/api/clear", nil))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/wiki5/load", nil))
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, httptest.NewRequest(http.MethodDelete, "/api/datasets/wiki5", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w, body = a.do(t, jsonRequest(http.MethodPost, "/api/query", QueryRequest{Question: "doc1", UseLLM: &useLLM}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrIndexNotBuilt.Error(), body["error"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	a := newTestAPI(t)

	w, _ := a.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/missing/load", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, httptest.NewRequest(http.MethodDelete, "/api/datasets/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, formRequest("/api/index", url.Values{"dataset_name": {"missing"}}))
	assert.Equal(t, http.StatusNotFound, w.Code, "no uploads")

	w, _ = a.do(t, uploadRequest(t, "wiki5", "notes.pdf", "x"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, jsonRequest(http.MethodPost, "/api/query", map[string]any{"top_k": 1}))
	assert.Equal(t, http.StatusBadRequest, w.Code, "question is required")

	w, _ = a.do(t, jsonRequest(http.MethodPost, "/api/query/batch", map[string]any{"questions": []string{}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := a.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = a.do(t, httptest.NewRequest(http.MethodGet, "/api/progress", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, body, "elapsed_time")
	assert.NotContains(t, body, "start_time")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(domain.ErrInvalidInput))
	assert.Equal(t, http.StatusBadRequest, StatusCode(domain.ErrIndexNotBuilt))
	assert.Equal(t, http.StatusNotFound, StatusCode(domain.ErrDatasetNotFound))
	assert.Equal(t, http.StatusConflict, StatusCode(domain.ErrOperationInProgress))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))
}
