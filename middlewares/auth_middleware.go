package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("authorization header missing"))
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("invalid authorization format"))
			return
		}

		setClaims(c, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

// WebSocketAuthMiddleware reads the token from the query string; browsers
// cannot set headers on a websocket handshake.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("token missing"))
			return
		}
		setClaims(c, token)
	}
}

func setClaims(c *gin.Context, token string) {
	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.AbortWithError(c, http.StatusUnauthorized, err)
		return
	}
	if claims.UserID == 0 {
		utils.AbortWithError(c, http.StatusUnauthorized, errors.New("invalid user ID in token"))
		return
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	c.Next()
}

// RequireRoles lets the request through only when the authenticated role is
// one of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			utils.AbortWithError(c, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}

		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}
		utils.AbortWithError(c, http.StatusForbidden, errors.New("you do not have permission to access this resource"))
	}
}
