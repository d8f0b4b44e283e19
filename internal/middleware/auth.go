package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prismarine/craftd/internal/service"
)

// AuthServiceInterface is the token validator the middleware needs.
type AuthServiceInterface interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

var authService AuthServiceInterface

// SetAuthService sets the auth service for the middleware
func SetAuthService(svc AuthServiceInterface) {
	authService = svc
}

// AuthMiddleware validates JWT bearer tokens on the command surface.
// With no auth service configured the daemon runs open, which is the
// expected mode on a trusted LAN.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authService == nil {
			c.Set("subject", "local")
			c.Set("is_admin", true)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization format. Use: Bearer <token>",
				"code":  "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("is_admin", claims.IsAdmin)
		c.Next()
	}
}
