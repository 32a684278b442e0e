package api

import (
	"context"       // Health check deadlines
	"crypto/subtle" // Constant time secret comparison
	"net/http"      // HTTP status codes
	"strconv"       // String conversion
	"time"          // Time durations

	"cashback_bot/internal/db"       // Persistence gateway
	"cashback_bot/internal/domain"   // Security event types
	"cashback_bot/internal/metrics"  // Prometheus registry
	"cashback_bot/internal/security" // Security log
	"cashback_bot/internal/utils"    // Cache

	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/mymmrac/telego"                               // Telegram update types
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics exposition
	"github.com/sirupsen/logrus"                              // Structured logging
)

// SecretHeader is set by Telegram on every webhook call when a secret was registered
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const updateDedupTTL = 24 * time.Hour

// UpdateHandler consumes one Telegram update
type UpdateHandler interface {
	Handle(ctx context.Context, update telego.Update) error
}

// WebhookHandler accepts Telegram updates. A redelivered update_id is acknowledged
// without being processed again.
func WebhookHandler(h UpdateHandler, cache *utils.Cache, secret string, audit *security.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check the secret token when one is configured
		if secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(secret)) != 1 {
			audit.Record(c.Request.Context(), 0, domain.EventBadWebhookSecret, map[string]any{"ip_address": c.ClientIP()})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var update telego.Update // Bind JSON request to struct
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid update"})
			return
		}
		// The request context may be cancelled by Telegram; the update is processed regardless
		ctx := context.WithoutCancel(c.Request.Context())

		first, err := cache.MarkOnce(ctx, "webhook:update:"+strconv.Itoa(update.UpdateID), updateDedupTTL)
		if err != nil {
			logrus.WithError(err).Warn("Update dedup unavailable, processing anyway")
			first = true
		}
		if !first {
			audit.Record(ctx, senderID(update), domain.EventDuplicateUpdate, map[string]any{"update_id": update.UpdateID})
			metrics.Events.WithLabelValues("update", "duplicate").Inc()
			c.JSON(http.StatusOK, gin.H{"ok": true, "duplicate": true})
			return
		}
		if err := h.Handle(ctx, update); err != nil {
			logrus.WithFields(logrus.Fields{
				"update_id": update.UpdateID,
				"error":     err.Error(),
			}).Warn("Update handling failed")
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// senderID is the author of a message update, 0 for anything else
func senderID(u telego.Update) int64 {
	if u.Message != nil && u.Message.From != nil {
		return u.Message.From.ID
	}
	return 0
}

// HealthHandler reports the database and Redis state
func HealthHandler(gw *db.Gateway, cache *utils.Cache, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		dbOK := gw.EnsureAvailable(ctx)    // Reconnects when the flag is down
		redisOK := cache.Ping(ctx) == nil // A disabled cache counts as healthy
		status := http.StatusOK
		state := "healthy"
		if !dbOK {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status":   state,
			"database": dbOK,
			"redis":    redisOK,
			"version":  version,
			"time":     time.Now().UTC(),
		})
	}
}

// MetricsHandler exposes the Prometheus registry
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
}
