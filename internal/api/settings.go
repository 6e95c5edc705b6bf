package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/db"
	"gridwatch/internal/model"
)

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.Store.LoadSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var body db.SettingsUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.Store.UpdateSettings(c.Request.Context(), body)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings updated", "settings": s})
}

func (h *Handler) resetSettings(c *gin.Context) {
	s, err := h.Store.ResetSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings reset to defaults", "settings": s})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		model.ErrVoltageRange,
		model.ErrVoltageMaxRange,
		model.ErrVoltageMinRange,
		model.ErrCurrentMaxRange,
		model.ErrPowerFactorRange,
		model.ErrCheckInterval,
		model.ErrOfflineThreshold,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
