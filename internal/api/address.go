package api

import (
	"errors"
	"net/http"

	"spice-commerce/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createAddressRequest struct {
	AddressName  string `json:"address_name" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state" binding:"required"`
	Pincode      string `json:"pincode" binding:"required"`
	IsDefault    bool   `json:"is_default"`
}

// listAddresses handles GET /api/v1/addresses
func (h *Handler) listAddresses(c *gin.Context) {
	addrs, err := h.store.ListAddressesByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		h.logger.Error("Failed to list addresses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addrs})
}

// createAddress handles POST /api/v1/addresses
func (h *Handler) createAddress(c *gin.Context) {
	var req createAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	addr := &models.Address{
		UserID:       currentUser(c),
		AddressName:  req.AddressName,
		Name:         req.Name,
		Phone:        req.Phone,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
		IsDefault:    req.IsDefault,
	}

	if err := h.store.CreateAddress(c.Request.Context(), addr); err != nil {
		h.logger.Error("Failed to create address", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": addr})
}

// setDefaultAddress handles PATCH /api/v1/addresses/:id/default
func (h *Handler) setDefaultAddress(c *gin.Context) {
	addressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	err := h.store.SetDefaultAddress(c.Request.Context(), addressID, currentUser(c))
	switch {
	case errors.Is(err, models.ErrInvalidAddress):
		c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
	case err != nil:
		h.logger.Error("Failed to set default address", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"default": addressID})
	}
}

// deleteAddress handles DELETE /api/v1/addresses/:id
func (h *Handler) deleteAddress(c *gin.Context) {
	addressID, ok := pathID(c, "id")
	if !ok {
		return
	}

	err := h.store.DeleteAddress(c.Request.Context(), addressID, currentUser(c))
	switch {
	case errors.Is(err, models.ErrInvalidAddress):
		c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
	case err != nil:
		h.logger.Error("Failed to delete address", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"deleted": addressID})
	}
}
