package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"gridwatch/internal/model"
)

type devicePayload struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

func (h *Handler) createDevice(c *gin.Context) {
	var body devicePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dev := model.Device{Name: body.Name, Location: body.Location}
	if err := h.Store.CreateDevice(c.Request.Context(), &dev); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrEmptyDeviceName) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dev)
}

func (h *Handler) listDevices(c *gin.Context) {
	devs, err := h.Store.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devs)
}

func (h *Handler) getDevice(c *gin.Context) {
	dev, err := h.Store.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (h *Handler) updateDevice(c *gin.Context) {
	var body devicePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dev, err := h.Store.UpdateDevice(c.Request.Context(), c.Param("id"), body.Name, body.Location)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, dev)
}

func (h *Handler) deleteDevice(c *gin.Context) {
	dev, err := h.Store.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err := h.Store.DeleteDevice(c.Request.Context(), dev.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device deleted"})
}

type bindingPayload struct {
	DeviceID   string `json:"device_id"`
	MacAddress string `json:"mac_address"`
}

func (h *Handler) createBinding(c *gin.Context) {
	var body bindingPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dev, err := h.Store.GetDevice(c.Request.Context(), body.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	binding := model.DeviceBinding{DeviceID: body.DeviceID, MacAddress: body.MacAddress}
	if err := h.Store.CreateBinding(c.Request.Context(), &binding); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidMACAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrDuplicatedKey):
			c.JSON(http.StatusConflict, gin.H{"error": "binding already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, binding)
}

func (h *Handler) listBindings(c *gin.Context) {
	bindings, err := h.Store.ListBindings(c.Request.Context(), c.Query("device_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bindings)
}

func (h *Handler) deleteBinding(c *gin.Context) {
	if err := h.Store.DeleteBinding(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "binding deleted"})
}
