package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/pkg/utils"
)

// GetConfigurations returns all alert configurations
func (h *Handlers) GetConfigurations(c *gin.Context) {
	configs, err := h.repos.Configurations.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list configurations")
		utils.SendError(c, http.StatusInternalServerError, "Failed to retrieve configurations")
		return
	}
	utils.SendSuccess(c, configs)
}

// GetConfiguration returns a single alert configuration
func (h *Handlers) GetConfiguration(c *gin.Context) {
	cfg, err := h.repos.Configurations.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to load configuration")
		return
	}
	utils.SendSuccess(c, cfg)
}

// CreateConfiguration validates and persists a new alert configuration.
// Structural errors reject the request; warnings are returned alongside the
// saved configuration.
func (h *Handlers) CreateConfiguration(c *gin.Context) {
	var cfg alerting.AlertConfiguration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	validation := h.engine.ValidateConfiguration(&cfg)
	if !validation.IsValid {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      "Configuration validation failed",
			"validation": validation,
		})
		return
	}

	now := time.Now().UTC()
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	for i := range cfg.Rules {
		if cfg.Rules[i].ID == "" {
			cfg.Rules[i].ID = uuid.New().String()
		}
		for j := range cfg.Rules[i].Conditions {
			if cfg.Rules[i].Conditions[j].ID == "" {
				cfg.Rules[i].Conditions[j].ID = uuid.New().String()
			}
		}
	}
	if cfg.Status == "" {
		cfg.Status = alerting.ConfigurationPaused
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := h.repos.Configurations.Create(c.Request.Context(), &cfg); err != nil {
		h.log.WithError(err).Error("Failed to create configuration")
		utils.SendError(c, http.StatusInternalServerError, "Failed to save configuration")
		return
	}

	h.log.WithFields(map[string]interface{}{
		"configuration_id": cfg.ID,
		"rules":            len(cfg.Rules),
	}).Info("Alert configuration created")

	utils.SendCreated(c, gin.H{"configuration": cfg, "validation": validation})
}

// UpdateConfiguration validates and replaces an existing configuration
func (h *Handlers) UpdateConfiguration(c *gin.Context) {
	id := c.Param("id")
	existing, err := h.repos.Configurations.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load configuration")
		return
	}

	var cfg alerting.AlertConfiguration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	cfg.ID = id
	cfg.CreatedBy = existing.CreatedBy
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	validation := h.engine.ValidateConfiguration(&cfg)
	if !validation.IsValid {
		c.JSON(http.StatusBadRequest, gin.H{
			"success":    false,
			"error":      "Configuration validation failed",
			"validation": validation,
		})
		return
	}

	if err := h.repos.Configurations.Update(c.Request.Context(), &cfg); err != nil {
		h.log.WithError(err).Error("Failed to update configuration")
		utils.SendError(c, http.StatusInternalServerError, "Failed to save configuration")
		return
	}
	utils.SendSuccess(c, gin.H{"configuration": cfg, "validation": validation})
}

// ValidateConfiguration runs validation without persisting anything
func (h *Handlers) ValidateConfiguration(c *gin.Context) {
	var cfg alerting.AlertConfiguration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	utils.SendSuccess(c, h.engine.ValidateConfiguration(&cfg))
}

type statusRequest struct {
	Status alerting.ConfigurationStatus `json:"status" binding:"required"`
}

// SetConfigurationStatus transitions a configuration between active, paused
// and archived. Activation re-validates the configuration first.
func (h *Handlers) SetConfigurationStatus(c *gin.Context) {
	id := c.Param("id")

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Status is required")
		return
	}
	switch req.Status {
	case alerting.ConfigurationActive, alerting.ConfigurationPaused, alerting.ConfigurationArchived:
	default:
		utils.SendError(c, http.StatusBadRequest, "Unknown configuration status")
		return
	}

	cfg, err := h.repos.Configurations.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "Failed to load configuration")
		return
	}

	if req.Status == alerting.ConfigurationActive {
		if validation := h.engine.ValidateConfiguration(cfg); !validation.IsValid {
			c.JSON(http.StatusBadRequest, gin.H{
				"success":    false,
				"error":      "Configuration cannot be activated",
				"validation": validation,
			})
			return
		}
	}

	if err := h.repos.Configurations.SetStatus(c.Request.Context(), id, req.Status); err != nil {
		h.log.WithError(err).Error("Failed to update configuration status")
		utils.SendError(c, http.StatusInternalServerError, "Failed to update status")
		return
	}
	utils.SendSuccess(c, gin.H{"id": id, "status": req.Status})
}
