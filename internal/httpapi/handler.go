// Package httpapi exposes the service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ragd/internal/dataset"
	"ragd/internal/domain"
	"ragd/internal/indexing"
	"ragd/internal/ingest"
	"ragd/internal/logger"
)

// Service is the part of the service facade the API uses.
type Service interface {
	EngineConfig(name string) domain.EngineConfig
	StartIndexing(ctx context.Context, passages []string, cfg domain.EngineConfig) (*indexing.Task, error)
	Query(ctx context.Context, question string, topK int, useLLM bool) domain.QueryResult
	BatchQuery(ctx context.Context, questions []string, topK int, useLLM bool) (domain.BatchResult, error)
	Datasets() ([]string, error)
	LoadDataset(ctx context.Context, name string) error
	DeleteDataset(name string) (dataset.Removed, error)
	Progress() domain.ProgressState
	Status() domain.ServiceStatus
	Clear() error
}

// Handler serves the REST endpoints.
type Handler struct {
	svc         Service
	uploads     *ingest.Store
	maxFileSize int64
	defaultTopK int
	log         *zap.Logger
	now         func() time.Time
}

func NewHandler(svc Service, uploads *ingest.Store, maxFileSize int64, defaultTopK int, log *zap.Logger) *Handler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Handler{
		svc:         svc,
		uploads:     uploads,
		maxFileSize: maxFileSize,
		defaultTopK: defaultTopK,
		log:         logger.Module(log, "http"),
		now:         time.Now,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
	UseLLM   *bool  `json:"use_llm"`
}

// BatchQueryRequest is the body of POST /api/query/batch.
type BatchQueryRequest struct {
	Questions []string `json:"questions" binding:"required"`
	TopK      int      `json:"top_k"`
	UseLLM    *bool    `json:"use_llm"`
}

// ProgressResponse adds the elapsed time to a progress snapshot.
type ProgressResponse struct {
	domain.ProgressState
	ElapsedSeconds *float64 `json:"elapsed_time,omitempty"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": h.now().UTC()})
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

func (h *Handler) Progress(c *gin.Context) {
	snap := h.svc.Progress()
	resp := ProgressResponse{ProgressState: snap}
	if elapsed, ok := snap.Elapsed(h.now()); ok {
		secs := elapsed.Seconds()
		resp.ElapsedSeconds = &secs
	}
	c.JSON(http.StatusOK, resp)
}

// Upload stores a corpus file for a dataset.
func (h *Handler) Upload(c *gin.Context) {
	name := c.PostForm("dataset_name")
	if err := dataset.ValidateName(name); err != nil {
		h.fail(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: file is required", domain.ErrInvalidInput))
		return
	}
	if h.maxFileSize > 0 && fh.Size > h.maxFileSize {
		h.fail(c, fmt.Errorf("%w: file too large, max %d bytes", domain.ErrInvalidInput, h.maxFileSize))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err)
		return
	}
	up, err := h.uploads.Save(name, fh.Filename, content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "file uploaded",
		"file_id":      up.FileID,
		"filename":     up.Filename,
		"dataset_name": up.Dataset,
		"file_size":    up.Size,
		"chunks_count": up.Passages,
	})
}

// Index starts an index build over the uploads of a dataset.
func (h *Handler) Index(c *gin.Context) {
	name := c.PostForm("dataset_name")
	if err := dataset.ValidateName(name); err != nil {
		h.fail(c, err)
		return
	}
	cfg := h.svc.EngineConfig(name)
	if raw := c.PostForm("config_data"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			h.fail(c, fmt.Errorf("%w: config_data: %w", domain.ErrInvalidInput, err))
			return
		}
		base := h.svc.EngineConfig(name)
		cfg.DatasetName, cfg.WorkingDir = base.DatasetName, base.WorkingDir
	}
	passages, err := h.uploads.Passages(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	task, err := h.svc.StartIndexing(c.Request.Context(), passages, cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success":         true,
		"message":         "processing started",
		"task_id":         task.ID,
		"dataset_name":    task.Dataset,
		"documents_count": task.Documents,
	})
}

func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}
	res := h.svc.Query(c.Request.Context(), req.Question, h.topK(req.TopK), useLLM(req.UseLLM))
	if !res.Success {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: res.Error})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) BatchQuery(c *gin.Context) {
	var req BatchQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}
	out, err := h.svc.BatchQuery(c.Request.Context(), req.Questions, h.topK(req.TopK), useLLM(req.UseLLM))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Datasets(c *gin.Context) {
	names, err := h.svc.Datasets()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"datasets": names, "count": len(names)})
}

// LoadDataset reports every load failure other than a busy service or a bad
// name as not found.
func (h *Handler) LoadDataset(c *gin.Context) {
	name := c.Param("name")
	if err := h.svc.LoadDataset(c.Request.Context(), name); err != nil {
		if !errors.Is(err, domain.ErrOperationInProgress) && !errors.Is(err, domain.ErrInvalidInput) {
			h.log.Warn("dataset load failed", zap.String("dataset", name), zap.Error(err))
			err = fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, name)
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("dataset %s loaded", name)})
}

func (h *Handler) DeleteDataset(c *gin.Context) {
	name := c.Param("name")
	removed, err := h.svc.DeleteDataset(name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("dataset %s deleted", name), "removed": removed})
}

func (h *Handler) Clear(c *gin.Context) {
	if err := h.svc.Clear(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "system cleared"})
}

func (h *Handler) topK(k int) int {
	if k <= 0 {
		return h.defaultTopK
	}
	return k
}

func useLLM(v *bool) bool { return v == nil || *v }

func (h *Handler) fail(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// StatusCode maps an error kind to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrIndexNotBuilt):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDatasetNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrOperationInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
