package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/secmail/secmaild/internal/auth"
	"github.com/secmail/secmaild/internal/db/repository"
)

// ContextKeyUserID is the gin context key holding the authenticated user id
const ContextKeyUserID = "auth_user_id"

// BearerAuth checks the Authorization header against stored session tokens
func BearerAuth(tokens *repository.TokenRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer token required",
			})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		record, err := tokens.Validate(auth.HashToken(token), time.Now())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		tokens.UpdateLastUsed(record.ID)
		c.Set(ContextKeyUserID, record.UserID)
		c.Next()
	}
}

// AdminAuth middleware checks for admin token
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			c.Abort()
			return
		}

		if token != adminToken {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
