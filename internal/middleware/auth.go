package middleware

import (
	"net/http"
	"strings"
	"time"

	"ecoreports/config"
	"ecoreports/internal/auth"
	"ecoreports/internal/domain"

	"github.com/gin-gonic/gin"
)

// Abort stops the chain with the standard error body.
func Abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":     msg,
		"code":      code,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// AuthRequired validates JWT and sets user_id, email, role in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization format")
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

// RequireRole checks that the authenticated user has one of the allowed roles.
func RequireRole(allowed ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := GetRole(c)
		if !ok {
			Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		for _, a := range allowed {
			if r == a {
				c.Next()
				return
			}
		}
		Abort(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	}
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	v, _ := c.Get("user_id")
	if v == nil {
		return 0
	}
	return v.(uint)
}

func GetRole(c *gin.Context) (domain.Role, bool) {
	v, ok := c.Get("role")
	if !ok {
		return "", false
	}
	r, ok := v.(domain.Role)
	return r, ok
}
