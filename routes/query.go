package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-backend/internal/retrieval"
	"rag-knowledge-backend/internal/telemetry"
	"rag-knowledge-backend/middleware"
	"rag-knowledge-backend/utils"
)

type queryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"topK"`
}

// SetupQueryRoutes registers the retrieval endpoint.
func SetupQueryRoutes(router *gin.Engine, engine *retrieval.Engine, metrics *telemetry.Metrics, auth *middleware.AuthMiddleware) {
	api := router.Group("/api", auth.RequireAuth())

	api.POST("/query", func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A query field is required", nil)
			return
		}

		answer, err := engine.Ask(c.Request.Context(), ownerID, req.Query, req.TopK)
		if err != nil {
			if errors.Is(err, retrieval.ErrGenerationFailed) {
				metrics.RecordQuery("generation_failed", 0)
				utils.RespondWithError(c, http.StatusBadGateway, "generation_failed",
					"The model provider failed to generate an answer", nil)
				return
			}
			metrics.RecordQuery("error", 0)
			utils.RespondWithInternalError(c, "Query failed", nil)
			return
		}

		metrics.RecordQuery("success", answer.TokensUsed)
		c.JSON(http.StatusOK, answer)
	})
}
