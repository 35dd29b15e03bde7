// Package api wires the gin router for the alerting backend.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/api/handlers"
	"github.com/atrium-ops/bms-backend-go/internal/api/middleware"
	"github.com/atrium-ops/bms-backend-go/internal/config"
	"github.com/atrium-ops/bms-backend-go/internal/database"
	"github.com/atrium-ops/bms-backend-go/internal/websocket"
	"github.com/atrium-ops/bms-backend-go/internal/worker"
)

// NewRouter creates and configures the main HTTP router
func NewRouter(
	cfg *config.Config,
	repos *database.Repositories,
	engine *alerting.Engine,
	w *worker.Worker,
	wsHub *websocket.Hub,
	logger *logrus.Logger,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())

	h := handlers.NewHandlers(cfg, repos, engine, w, wsHub, logger)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", h.WebSocketHandler(wsHub))

	api := router.Group("/api/v1")
	{
		configurations := api.Group("/configurations")
		{
			configurations.GET("", h.GetConfigurations)
			configurations.POST("", h.CreateConfiguration)
			configurations.POST("/validate", h.ValidateConfiguration)
			configurations.GET("/:id", h.GetConfiguration)
			configurations.PUT("/:id", h.UpdateConfiguration)
			configurations.POST("/:id/status", h.SetConfigurationStatus)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", h.GetAlerts)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
			alerts.POST("/:id/false-positive", h.MarkFalsePositive)
		}

		api.POST("/evaluate", h.TriggerEvaluation)
		api.POST("/readings", h.IngestReading)
	}

	return router
}
