package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/db"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/syncer"
)

// ingestReading accepts a device's self-reported snapshot, authenticated by
// its MAC binding. Shares dedup semantics with the sync poller: an existing
// (device, timestamp) reading turns the request into a no-op.
func (h *Handler) ingestReading(c *gin.Context) {
	var rec syncer.RawRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rec.MacAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mac_address is required"})
		return
	}

	ctx := c.Request.Context()
	device, err := h.Store.FindDeviceByMAC(ctx, rec.MacAddress)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "MAC address not registered"})
		return
	}

	// Self-reported readings may omit the timestamp; receipt time stands in.
	ts := time.Now().UTC()
	if rec.ReadingTime != "" {
		ts, err = syncer.ParseTimestamp(rec.ReadingTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading_time"})
			return
		}
	}

	reading := model.Reading{
		DeviceID:     device.ID,
		ReadingTime:  ts,
		Measurements: rec.Measurements,
	}
	if err := h.Store.InsertReading(ctx, &reading); err != nil {
		if errors.Is(err, db.ErrDuplicateReading) {
			c.JSON(http.StatusOK, gin.H{"message": "reading already recorded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	metrics.ReadingsIngestedTotal.WithLabelValues("device").Inc()
	c.JSON(http.StatusCreated, reading)
}

func (h *Handler) listReadings(c *gin.Context) {
	f := db.ReadingFilter{
		DeviceID: c.Query("device_id"),
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
	}
	if v := c.Query("date_from"); v != "" {
		t, err := syncer.ParseTimestamp(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
			return
		}
		f.From = t
	}
	if v := c.Query("date_to"); v != "" {
		t, err := syncer.ParseTimestamp(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
			return
		}
		f.To = t
	}

	rows, total, err := h.Store.ListReadings(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "readings": rows})
}

func (h *Handler) latestReading(c *gin.Context) {
	r, err := h.Store.LatestReading(c.Request.Context(), c.Param("deviceID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings for device"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) purgeReadings(c *gin.Context) {
	n, err := h.Store.PurgeReadings(c.Request.Context(), c.Query("device_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
