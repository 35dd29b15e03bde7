package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/websocket"
	"github.com/atrium-ops/bms-backend-go/pkg/utils"
)

// GetAlerts returns alert instances, optionally filtered by status
func (h *Handlers) GetAlerts(c *gin.Context) {
	status := alerting.AlertStatus(c.Query("status"))
	if status == "" {
		status = alerting.StatusTriggered
	}

	alerts, err := h.repos.Alerts.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alerts")
		utils.SendError(c, http.StatusInternalServerError, "Failed to retrieve alerts")
		return
	}
	utils.SendSuccess(c, alerts)
}

// GetAlert returns a single alert with its notification history
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load alert")
		return
	}

	logs, err := h.repos.Notifications.ListByAlert(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to load notification history")
	} else {
		alert.Notifications = make([]alerting.NotificationLog, len(logs))
		for i, l := range logs {
			alert.Notifications[i] = *l
		}
	}
	utils.SendSuccess(c, alert)
}

// AcknowledgeAlert marks an alert acknowledged and cancels its pending
// escalation timer.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load alert")
		return
	}
	if alert.Status != alerting.StatusTriggered {
		utils.SendError(c, http.StatusConflict, "Alert is not in triggered state")
		return
	}

	now := time.Now().UTC()
	if err := h.repos.Alerts.Acknowledge(c.Request.Context(), id, now); err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to acknowledge alert")
		utils.SendError(c, http.StatusInternalServerError, "Failed to acknowledge alert")
		return
	}
	h.worker.CancelEscalation(id)

	alert.Status = alerting.StatusAcknowledged
	alert.AcknowledgedAt = &now
	h.wsHub.Broadcast(websocket.NewMessage(websocket.EventAlertAcknowledged, alert))
	utils.SendSuccess(c, alert)
}

// ResolveAlert marks an alert resolved and cancels its pending escalation
// timer.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	id := c.Param("id")

	alert, err := h.repos.Alerts.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load alert")
		return
	}
	if !alert.IsOpen() {
		utils.SendError(c, http.StatusConflict, "Alert is already closed")
		return
	}

	now := time.Now().UTC()
	if err := h.repos.Alerts.Resolve(c.Request.Context(), id, now); err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to resolve alert")
		utils.SendError(c, http.StatusInternalServerError, "Failed to resolve alert")
		return
	}
	h.worker.CancelEscalation(id)

	alert.Status = alerting.StatusResolved
	alert.ResolvedAt = &now
	h.wsHub.Broadcast(websocket.NewMessage(websocket.EventAlertResolved, alert))
	utils.SendSuccess(c, alert)
}

// MarkFalsePositive flags a resolved or open alert as a false positive so
// threshold tuning can learn from it.
func (h *Handlers) MarkFalsePositive(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.repos.Alerts.GetByID(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to load alert")
		return
	}

	if err := h.repos.Alerts.MarkFalsePositive(c.Request.Context(), id); err != nil {
		h.log.WithError(err).WithField("alert_id", id).Error("Failed to mark false positive")
		utils.SendError(c, http.StatusInternalServerError, "Failed to mark false positive")
		return
	}
	utils.SendSuccess(c, gin.H{"id": id, "false_positive": true})
}

// TriggerEvaluation runs an evaluation pass immediately instead of waiting for
// the next scheduled one.
func (h *Handlers) TriggerEvaluation(c *gin.Context) {
	alerts, err := h.worker.RunOnce(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Manual evaluation pass failed")
		utils.SendError(c, http.StatusInternalServerError, "Evaluation pass failed")
		return
	}
	utils.SendSuccess(c, gin.H{"new_alerts": len(alerts), "alerts": alerts})
}
