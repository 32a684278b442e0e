package api

import (
	"encoding/json" // Raw JSON values
	"net/http"      // HTTP status codes

	"cashback_bot/internal/settings" // Settings store

	"github.com/gin-gonic/gin" // Gin web framework
)

// SettingRequest carries the new value as any JSON document
type SettingRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// GetSettingsHandler returns defaults overlaid with stored values
func GetSettingsHandler(store *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"settings": store.All(c.Request.Context())})
	}
}

// PutSettingHandler stores one known setting
func PutSettingHandler(store *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("key")
		if _, known := settings.Defaults[key]; !known {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown setting"})
			return
		}
		var req SettingRequest
		if err := c.ShouldBindJSON(&req); err != nil || !json.Valid(req.Value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := store.Set(c.Request.Context(), key, string(req.Value)); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
	}
}
