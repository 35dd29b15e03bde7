package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/pkg/utils"
)

// IngestReading stores a sensor reading for the evaluation engine
func (h *Handlers) IngestReading(c *gin.Context) {
	var reading alerting.SensorReading
	if err := c.ShouldBindJSON(&reading); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if reading.SensorID == "" || reading.MetricType == "" {
		utils.SendError(c, http.StatusBadRequest, "sensor_id and metric_type are required")
		return
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	if err := h.repos.Readings.Insert(c.Request.Context(), &reading); err != nil {
		h.log.WithError(err).WithField("sensor_id", reading.SensorID).Error("Failed to store reading")
		utils.SendError(c, http.StatusInternalServerError, "Failed to store reading")
		return
	}
	utils.SendCreated(c, reading)
}
