package api

import (
	"errors"   // Error classification
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"cashback_bot/internal/domain" // Error taxonomy

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// respondError maps a domain error to a status code and a generic message
func respondError(c *gin.Context, err error) {
	status, msg := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		status, msg = http.StatusNotFound, "User not found"
	case errors.Is(err, domain.ErrCampaignNotFound):
		status, msg = http.StatusNotFound, "Campaign not found"
	case errors.Is(err, domain.ErrUserInactive):
		status, msg = http.StatusConflict, "User is deactivated"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrInvalidAmount):
		status, msg = http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, domain.ErrInvalidType):
		status, msg = http.StatusBadRequest, "Invalid transaction type"
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "Service temporarily unavailable"
	}
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": msg}) // Never leak internal detail
}

// pagination reads page and page_size with the usual bounds
func pagination(c *gin.Context) (int, int) {
	page := 1      // Default page number
	pageSize := 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size within limits
		}
	}
	return page, pageSize
}
