package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"cashback_bot/internal/campaign" // Campaign registry
	"cashback_bot/internal/domain"   // Domain models

	"github.com/gin-gonic/gin" // Gin web framework
)

// ListCampaignsHandler returns every campaign; ?active=true keeps only live ones
func ListCampaignsHandler(reg *campaign.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := reg.List(c.Request.Context())
		if c.Query("active") == "true" {
			list, err = reg.ListActive(c.Request.Context())
		}
		if err != nil {
			respondError(c, err)
			return
		}
		if list == nil {
			list = []domain.Campaign{} // Render [] rather than null
		}
		c.JSON(http.StatusOK, gin.H{"campaigns": list})
	}
}

// CreateCampaignHandler adds a campaign
func CreateCampaignHandler(reg *campaign.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req campaign.NewCampaign // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		created, err := reg.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// UpdateCampaignHandler patches a campaign
func UpdateCampaignHandler(reg *campaign.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign id"})
			return
		}
		var req campaign.Update
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		updated, err := reg.Update(c.Request.Context(), uint(id), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}
