package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation

	"cashback_bot/internal/domain"     // Domain models
	"cashback_bot/internal/ledger"     // Ledger engine
	"cashback_bot/internal/middleware" // Context keys

	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/shopspring/decimal" // Exact amounts
	"github.com/sirupsen/logrus"    // Structured logging
)

// Request struct for manual balance adjustments
type AdjustmentRequest struct {
	UserID      int64           `json:"user_id" binding:"required"`     // Target user
	Amount      decimal.Decimal `json:"amount"`                         // Signed amount, non-zero
	Description string          `json:"description" binding:"required"` // Reason shown in history
}

// AdjustmentHandler posts an adjustment transaction on behalf of the admin
func AdjustmentHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdjustmentRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if strings.TrimSpace(req.Description) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Description is required"})
			return
		}
		txn, err := engine.Apply(c.Request.Context(), ledger.Posting{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Type:        domain.TypeAdjustment,
			Description: req.Description,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"admin":     c.GetString(middleware.CtxSubject), // Who made the change
			"user_id":   req.UserID,
			"amount":    req.Amount.String(),
			"reference": txn.Reference,
		}).Info("Balance adjusted")
		c.JSON(http.StatusCreated, txn)
	}
}

// UserHistoryHandler returns a page of one user's transactions
func UserHistoryHandler(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
			return
		}
		page, pageSize := pagination(c)
		if _, err := engine.Wallet(c.Request.Context(), userID); err != nil {
			respondError(c, err) // 404 for unknown users rather than an empty page
			return
		}
		history, err := engine.History(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}
