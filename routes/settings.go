package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-backend/internal/ai"
	"rag-knowledge-backend/middleware"
	"rag-knowledge-backend/utils"
)

type settingsRequest struct {
	Provider string `json:"provider" binding:"required"`
	// APIKey is write-only; it is never echoed back.
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
}

// SetupSettingsRoutes registers the per-tenant provider preference endpoints.
func SetupSettingsRoutes(router *gin.Engine, creds *ai.MongoCredentialStore, auth *middleware.AuthMiddleware) {
	api := router.Group("/api", auth.RequireAuth())

	api.GET("/settings", func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		provider, model, hasKey, err := creds.Settings(c.Request.Context(), ownerID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load settings", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"provider": provider,
			"model":    model,
			"hasKey":   hasKey,
		})
	})

	api.PUT("/settings", func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A provider field is required", nil)
			return
		}
		provider := ai.Provider(req.Provider)
		if !ai.Known(provider) {
			utils.RespondWithBadRequest(c, "Unknown provider", gin.H{"provider": req.Provider})
			return
		}
		if provider == ai.ProviderCustom && req.BaseURL == "" {
			utils.RespondWithBadRequest(c, "Custom provider requires a baseUrl", nil)
			return
		}

		if err := creds.Save(c.Request.Context(), ownerID, provider, req.APIKey, req.BaseURL, req.Model); err != nil {
			utils.RespondWithInternalError(c, "Failed to save settings", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"provider": provider})
	})
}
