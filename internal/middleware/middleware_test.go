package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashback_bot/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin/ping", JWTAuthMiddleware("secret"), AdminOnlyMiddleware("root"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString(CtxSubject)})
	})
	return r
}

func call(t *testing.T, r *gin.Engine, auth string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	r := newEngine()

	assert.Equal(t, http.StatusUnauthorized, call(t, r, ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, r, "Bearer garbage"))

	other, err := utils.GenerateJWT("mallory", utils.RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(t, r, "Bearer "+other))

	wrongRole, err := utils.GenerateJWT("root", "viewer", "secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, call(t, r, "Bearer "+wrongRole))

	ok, err := utils.GenerateJWT("root", utils.RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, call(t, r, "Bearer "+ok))
}
