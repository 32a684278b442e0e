package api

import (
	"cashback_bot/internal/campaign"   // Campaign registry
	"cashback_bot/internal/db"         // Persistence gateway
	"cashback_bot/internal/ledger"     // Ledger engine
	"cashback_bot/internal/middleware" // Auth middleware
	"cashback_bot/internal/security"   // Security log
	"cashback_bot/internal/settings"   // Settings store
	"cashback_bot/internal/users"      // User directory
	"cashback_bot/internal/utils"      // Cache

	"github.com/gin-gonic/gin" // Gin web framework
)

// Services is everything the HTTP surface talks to
type Services struct {
	Gateway   *db.Gateway
	Cache     *utils.Cache
	Users     *users.Directory
	Ledger    *ledger.Engine
	Campaigns *campaign.Registry
	Settings  *settings.Store
	Security  *security.Log // nil disables event recording
	Updates   UpdateHandler // nil disables the webhook route

	Admin         AdminCredentials
	JWTSecret     string
	WebhookSecret string
	Version       string
}

// Register mounts every route on r
func Register(r *gin.Engine, s Services) {
	r.GET("/health", HealthHandler(s.Gateway, s.Cache, s.Version)) // Liveness and dependencies
	r.GET("/metrics", MetricsHandler())                            // Prometheus scrape endpoint
	if s.Updates != nil {
		r.POST("/webhook", WebhookHandler(s.Updates, s.Cache, s.WebhookSecret, s.Security)) // Telegram updates
	}

	r.POST("/admin/login", LoginHandler(s.Admin, s.JWTSecret)) // Admin login endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.JWTAuthMiddleware(s.JWTSecret), middleware.AdminOnlyMiddleware(s.Admin.Username))
	adminGroup.GET("/users", ListUsersHandler(s.Users, s.Cache))                            // List users endpoint
	adminGroup.GET("/users/:user_id", GetUserHandler(s.Users, s.Ledger))                    // User detail endpoint
	adminGroup.PATCH("/users/:user_id", SetUserStatusHandler(s.Users, s.Cache, s.Security)) // Activate or deactivate
	adminGroup.GET("/users/:user_id/transactions", UserHistoryHandler(s.Ledger))            // User history endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(s.Ledger))                      // List transactions endpoint
	adminGroup.GET("/stats", StatsHandler(s.Users, s.Ledger, s.Security))                   // Dashboard numbers
	adminGroup.GET("/campaigns", ListCampaignsHandler(s.Campaigns))                         // List campaigns
	adminGroup.POST("/campaigns", CreateCampaignHandler(s.Campaigns))                       // Create campaign
	adminGroup.PATCH("/campaigns/:id", UpdateCampaignHandler(s.Campaigns))                  // Update campaign
	adminGroup.GET("/settings", GetSettingsHandler(s.Settings))                             // Effective settings
	adminGroup.PUT("/settings/:key", PutSettingHandler(s.Settings))                         // Change a setting
	adminGroup.POST("/adjustments", AdjustmentHandler(s.Ledger))                            // Manual balance adjustment
	adminGroup.GET("/security-events", SecurityEventsHandler(s.Security))                   // Security log
}
