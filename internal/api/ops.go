package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Operational controls for the two background loops. Start and stop are
// idempotent; the response always carries the post-action status.

func (h *Handler) startGenerator(c *gin.Context) {
	h.Generator.Start()
	c.JSON(http.StatusOK, gin.H{"message": "alert generator started", "status": h.Generator.Status()})
}

func (h *Handler) stopGenerator(c *gin.Context) {
	h.Generator.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "alert generator stopped", "status": h.Generator.Status()})
}

func (h *Handler) generatorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Generator.Status())
}

func (h *Handler) startSync(c *gin.Context) {
	h.Poller.Start()
	c.JSON(http.StatusOK, gin.H{"message": "sync started", "status": h.Poller.Status()})
}

func (h *Handler) stopSync(c *gin.Context) {
	h.Poller.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "sync stopped", "status": h.Poller.Status()})
}

func (h *Handler) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.Poller.Status())
}
