package api

import (
	"crypto/subtle" // Constant time username comparison
	"net/http"      // HTTP status codes
	"strings"       // String manipulation
	"time"          // Token lifetime

	"cashback_bot/internal/utils" // JWT helpers

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
	"golang.org/x/crypto/bcrypt" // Password hashing
)

const tokenTTL = 24 * time.Hour

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token     string    `json:"token"`      // JWT token
	ExpiresAt time.Time `json:"expires_at"` // Token expiry
}

// AdminCredentials is the single admin account of the dashboard
type AdminCredentials struct {
	Username string
	hash     []byte
}

// NewAdminCredentials accepts either a bcrypt hash or a plain password, which is hashed here
func NewAdminCredentials(username, password string) (AdminCredentials, error) {
	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		return AdminCredentials{Username: username, hash: []byte(password)}, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return AdminCredentials{}, err
	}
	return AdminCredentials{Username: username, hash: hash}, nil
}

// LoginHandler authenticates the admin and returns a JWT token
func LoginHandler(admin AdminCredentials, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Unknown username and wrong password look the same to the caller
		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(admin.Username)) == 1
		if err := bcrypt.CompareHashAndPassword(admin.hash, []byte(req.Password)); err != nil || !userOK || admin.Username == "" {
			logrus.WithField("username", req.Username).Warn("Admin login rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(admin.Username, utils.RoleAdmin, jwtSecret, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		logrus.WithField("username", admin.Username).Info("Admin logged in")
		c.JSON(http.StatusOK, AuthResponse{Token: token, ExpiresAt: time.Now().Add(tokenTTL).UTC()})
	}
}
