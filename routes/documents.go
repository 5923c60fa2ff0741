package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-knowledge-backend/internal/ingest"
	"rag-knowledge-backend/internal/storage"
	"rag-knowledge-backend/middleware"
	"rag-knowledge-backend/utils"
)

// IndexDeleter is the deletion surface of the vector index client.
type IndexDeleter interface {
	Delete(ctx context.Context, namespace, documentID string) error
}

// SetupDocumentRoutes registers the document listing and deletion endpoints.
func SetupDocumentRoutes(router *gin.Engine, docs ingest.DocumentStore, objects storage.ObjectStore, index IndexDeleter, auth *middleware.AuthMiddleware) {
	api := router.Group("/api", auth.RequireAuth())

	api.GET("/documents", handleListDocuments(docs))
	api.DELETE("/documents/:docID", handleDeleteDocument(docs, objects, index))
}

func handleListDocuments(docs ingest.DocumentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		summaries, err := docs.List(c.Request.Context(), ownerID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": summaries})
	}
}

// handleDeleteDocument cascades: index first, then raw payload, then the
// record. Ordered so a mid-failure can never leave indexed chunks whose
// document record is gone.
func handleDeleteDocument(docs ingest.DocumentStore, objects storage.ObjectStore, index IndexDeleter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)
		docID := c.Param("docID")
		ctx := c.Request.Context()

		if _, err := docs.Get(ctx, ownerID, docID); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		if err := index.Delete(ctx, ownerID, docID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete indexed chunks", nil)
			return
		}
		if err := objects.DeleteRaw(ownerID, docID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete stored payload", nil)
			return
		}
		if err := docs.Delete(ctx, ownerID, docID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document record", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": docID})
	}
}
