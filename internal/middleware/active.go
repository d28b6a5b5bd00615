package middleware

import (
	"context"
	"net/http"

	"ecoreports/internal/domain"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// AccountChecker returns the stored state of an account.
type AccountChecker interface {
	AccountStatus(ctx context.Context, userID uint) (active bool, role domain.Role, err error)
}

// ActiveOnly rejects tokens of deactivated accounts and replaces the role claim
// with the stored role, so role changes apply before the token expires. Use after
// AuthRequired and before RequireRole.
func ActiveOnly(users AccountChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		ok, role, err := users.AccountStatus(c.Request.Context(), userID)
		if err != nil {
			log.WithError(err).WithField("user_id", userID).Error("active check failed")
			Abort(c, http.StatusServiceUnavailable, "DATASTORE_UNAVAILABLE", "base de datos no disponible")
			return
		}
		if !ok {
			Abort(c, http.StatusForbidden, "INACTIVE_USER", "la cuenta está desactivada")
			return
		}
		c.Set("role", role)
		c.Next()
	}
}
