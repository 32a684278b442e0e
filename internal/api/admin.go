package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"cashback_bot/internal/domain"     // Domain models
	"cashback_bot/internal/ledger"     // Ledger queries
	"cashback_bot/internal/middleware" // Context keys
	"cashback_bot/internal/security"   // Security log
	"cashback_bot/internal/users"      // User directory
	"cashback_bot/internal/utils"      // Cache

	"github.com/gin-gonic/gin" // Gin web framework
)

// UserListResponse is one page of users for the admin
type UserListResponse struct {
	Users      []domain.User `json:"users"`       // List of users
	Page       int           `json:"page"`        // Current page
	PageSize   int           `json:"page_size"`   // Page size
	Total      int64         `json:"total"`       // Total number of users
	TotalPages int           `json:"total_pages"` // Total pages
	Cached     bool          `json:"cached"`      // Served from cache
}

// ListUsersHandler returns users with their wallet fields
func ListUsersHandler(dir *users.Directory, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		var cached UserListResponse
		if found, err := cache.Get(ctx, cacheKey, &cached); err == nil && found {
			cached.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, cached)
			return
		}
		list, total, err := dir.List(ctx, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := UserListResponse{
			Users:      list,
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize, // Calculate total pages
		}
		_ = cache.Set(ctx, cacheKey, resp, 60*time.Second) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)
	}
}

// UserStatusRequest is the body of a user status change
type UserStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"` // false blocks every posting for the user
}

// SetUserStatusHandler activates or deactivates a user
func SetUserStatusHandler(dir *users.Directory, cache *utils.Cache, audit *security.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		var req UserStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		if err := dir.SetActive(ctx, userID, *req.IsActive); err != nil {
			respondError(c, err)
			return
		}
		_ = cache.DeletePrefix(ctx, "admin:users:") // Listing pages embed the flag
		audit.Record(ctx, userID, domain.EventUserStatusChanged, map[string]any{
			"admin":     c.GetString(middleware.CtxSubject), // Acting admin
			"is_active": *req.IsActive,                      // New state
		})
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "is_active": *req.IsActive})
	}
}

// GetUserHandler returns one user and their wallet
func GetUserHandler(dir *users.Directory, engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		user, err := dir.Get(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		history, err := engine.History(c.Request.Context(), userID, 1, 10)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user":                user,                 // Profile and counters
			"wallet":              user.Wallet(),        // Balance view
			"recent_transactions": history.Transactions, // Latest ledger rows
		})
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, type, or date
func ListTransactionsHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c)
		var f ledger.TransactionFilter
		if v := c.Query("user_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
				return
			}
			f.UserID = &id // Filter by user ID
		}
		if v := c.Query("type"); v != "" {
			f.Type = domain.TransactionType(v) // Filter by transaction type
			if !f.Type.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction type"})
				return
			}
		}
		for param, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			ts, err := parseTime(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + " date"})
				return
			}
			*dst = &ts // Filter by date bound
		}
		result, err := engine.Transactions(c.Request.Context(), f, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// parseTime accepts RFC 3339 timestamps and plain dates
func parseTime(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", v)
}

// StatsHandler returns the admin dashboard numbers
func StatsHandler(dir *users.Directory, engine *ledger.Engine, audit *security.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userStats, err := dir.Stats(ctx, time.Now())
		if err != nil {
			respondError(c, err)
			return
		}
		totals, err := engine.Totals(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		top, err := dir.TopReferrers(ctx, 10)
		if err != nil {
			respondError(c, err)
			return
		}
		events, err := audit.CountSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"users":               userStats, // User counts
			"ledger":              totals,    // Balance and transaction totals
			"top_referrers":       top,       // Best referrers
			"security_events_24h": events,    // Recent security log entries
		})
	}
}

// SecurityEventsHandler lists the security log, newest first
func SecurityEventsHandler(audit *security.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f security.Filter
		if v := c.Query("user_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
				return
			}
			f.UserID = id
		}
		f.EventType = domain.SecurityEventType(c.Query("type"))
		if v := c.Query("since"); v != "" {
			since, err := parseTime(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since"})
				return
			}
			f.Since = since
		}
		if v := c.Query("limit"); v != "" {
			f.Limit, _ = strconv.Atoi(v) // Out of range falls back to the default
		}
		events, err := audit.Recent(c.Request.Context(), f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}
