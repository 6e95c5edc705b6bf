package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/db"
	"gridwatch/internal/model"
)

func (h *Handler) listAlerts(c *gin.Context) {
	f := db.AlertFilter{
		DeviceID: c.Query("device_id"),
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
	}
	if v := c.Query("type"); v != "" {
		t := model.AlertType(v)
		if !t.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert type"})
			return
		}
		f.Type = t
	}
	if v := c.Query("severity"); v != "" {
		s := model.Severity(v)
		if !s.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
			return
		}
		f.Severity = s
	}
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resolved flag"})
			return
		}
		f.Resolved = &b
	}

	rows, total, err := h.Store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "alerts": rows})
}

type resolvePayload struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *Handler) resolveAlert(c *gin.Context) {
	var body resolvePayload
	_ = c.ShouldBindJSON(&body)

	alert, err := h.Store.ResolveAlert(c.Request.Context(), c.Param("id"), body.ResolvedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) resolveAllAlerts(c *gin.Context) {
	var body resolvePayload
	_ = c.ShouldBindJSON(&body)

	n, err := h.Store.ResolveAllAlerts(c.Request.Context(), c.Query("device_id"), body.ResolvedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": n})
}

// cleanupAlerts purges resolved alerts older than the given number of days
// (default 30).
func (h *Handler) cleanupAlerts(c *gin.Context) {
	days := intQuery(c, "days", 30)
	if days < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be at least 1"})
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := h.Store.DeleteResolvedBefore(c.Request.Context(), cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
