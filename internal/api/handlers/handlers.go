// Package handlers contains the HTTP handlers for the alerting API.
package handlers

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/config"
	"github.com/atrium-ops/bms-backend-go/internal/database"
	"github.com/atrium-ops/bms-backend-go/internal/websocket"
	"github.com/atrium-ops/bms-backend-go/internal/worker"
	apperr "github.com/atrium-ops/bms-backend-go/pkg/errors"
	"github.com/atrium-ops/bms-backend-go/pkg/utils"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	cfg    *config.Config
	repos  *database.Repositories
	engine *alerting.Engine
	worker *worker.Worker
	wsHub  *websocket.Hub
	log    *logrus.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	cfg *config.Config,
	repos *database.Repositories,
	engine *alerting.Engine,
	w *worker.Worker,
	wsHub *websocket.Hub,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		cfg:    cfg,
		repos:  repos,
		engine: engine,
		worker: w,
		wsHub:  wsHub,
		log:    logger,
	}
}

// respondError maps storage and application errors onto HTTP responses.
// Unknown errors are logged and reported with the fallback message.
func (h *Handlers) respondError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, sql.ErrNoRows) {
		err = apperr.ErrNotFound
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		utils.SendError(c, appErr.Code, appErr.Message)
		return
	}
	h.log.WithError(err).Error(fallback)
	utils.SendError(c, apperr.GetStatusCode(err), fallback)
}
