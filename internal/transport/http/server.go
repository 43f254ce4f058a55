package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfqa/internal/metrics"
	"pdfqa/internal/transport/http/handler"
	"pdfqa/internal/transport/http/middleware"
)

type Deps struct {
	GinMode string
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	QA      handler.QAService
	History handler.HistoryReader
	Health  *handler.HealthHandler
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.GinMode != "" {
		gin.SetMode(deps.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(deps.Logger), middleware.CORS())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	qaHandler := handler.NewQAHandler(deps.QA)
	historyHandler := handler.NewHistoryHandler(deps.History)

	router.GET("/", qaHandler.Info)
	router.POST("/upload-pdf/", qaHandler.UploadPDF)
	router.POST("/ask-question/", qaHandler.AskQuestion)
	router.GET("/history/", historyHandler.List)

	if deps.Health != nil {
		router.GET("/healthz", deps.Health.Check)
	} else {
		router.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}

	return router
}
