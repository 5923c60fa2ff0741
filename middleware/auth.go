package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-backend/internal/config"
	"rag-knowledge-backend/utils"
)

const ownerContextKey = "owner_id"

type AuthMiddleware struct {
	config *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{config: cfg}
}

// RequireAuth validates the bearer token and stores the tenant id on the
// request context. Every handler downstream reads the owner through
// GetOwnerID and nothing else.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(tokenString, a.config.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ownerContextKey, claims.OwnerID)
		c.Next()
	}
}

// GetOwnerID returns the authenticated tenant id, or "" when unauthenticated.
func GetOwnerID(c *gin.Context) string {
	if v, exists := c.Get(ownerContextKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
