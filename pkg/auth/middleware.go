// Package auth provides authentication utilities for the dashboard backend.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	ContextKeyClaims contextKey = "claims"
	ContextKeyUserID contextKey = "user_id"
)

// Middleware provides authentication middleware
type Middleware struct {
	jwtManager *JWTManager
	db         *gorm.DB
	logger     *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(jwtManager *JWTManager, db *gorm.DB, logger *zap.Logger) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		db:         db,
		logger:     logger,
	}
}

// Authenticate returns a Gin middleware for JWT authentication
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization token",
			})
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			m.logger.Debug("token validation failed",
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}

		// Verify the staff member exists and is active
		if claims.UserID != "" {
			var staff models.StaffMember
			if err := m.db.Where("id = ? AND active = ?", claims.UserID, true).First(&staff).Error; err != nil {
				m.logger.Debug("staff member not found or inactive",
					zap.String("user_id", claims.UserID),
					zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "staff member not found or deactivated",
				})
				return
			}
		}

		c.Set(string(ContextKeyClaims), claims)
		c.Set(string(ContextKeyUserID), claims.UserID)

		c.Next()
	}
}

// RequireAdmin returns middleware that restricts a route to admin staff
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaimsFromGin(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		if !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin privileges required",
			})
			return
		}
		c.Next()
	}
}

// extractToken extracts the token from the request
func (m *Middleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	return c.Query("token")
}

// GetClaimsFromGin extracts claims from Gin context
func GetClaimsFromGin(c *gin.Context) *Claims {
	if claims, exists := c.Get(string(ContextKeyClaims)); exists {
		return claims.(*Claims)
	}
	return nil
}

// GetUserIDFromGin extracts the authenticated user ID from Gin context
func GetUserIDFromGin(c *gin.Context) string {
	if userID, exists := c.Get(string(ContextKeyUserID)); exists {
		return userID.(string)
	}
	return ""
}
