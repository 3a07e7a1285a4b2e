package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/health-assistant/internal/infra/config"
	"github.com/yanqian/health-assistant/internal/observability/metrics"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, m *metrics.Metrics) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(handler.logger),
		metricsMiddleware(m),
		corsMiddleware(cfg.HTTP.CORSOrigins),
		errorHandlingMiddleware(handler.logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	router.GET("/healthz", handler.Healthz)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/chat/session", handler.CreateSession)
		api.GET("/chat/session", handler.CreateSession)
		api.GET("/chat/sessions", handler.ListSessions)
		api.GET("/chat/history", handler.History)
		api.POST("/chat", handler.Chat)
		api.POST("/chat/stateless", handler.Stateless)
		api.PUT("/chat/edit/:id", handler.EditAndResend)
		api.POST("/feedback", handler.Feedback)
		api.GET("/metrics", handler.Metrics)
		api.POST("/train/reinforce", handler.Reinforce)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
