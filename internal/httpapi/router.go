package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(h *Handler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	if h.maxFileSize > 0 {
		r.MaxMultipartMemory = h.maxFileSize
	}

	r.GET("/health", h.Health)
	api := r.Group("/api")
	{
		api.GET("/status", h.Status)
		api.GET("/progress", h.Progress)
		api.POST("/upload", h.Upload)
		api.POST("/index", h.Index)
		api.POST("/query", h.Query)
		api.POST("/query/batch", h.BatchQuery)
		api.GET("/datasets", h.Datasets)
		api.POST("/datasets/:name/load", h.LoadDataset)
		api.DELETE("/datasets/:name", h.DeleteDataset)
		api.POST("/clear", h.Clear)
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("module", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
