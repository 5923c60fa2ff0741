package routes

import (
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rag-knowledge-backend/internal/config"
	"rag-knowledge-backend/internal/ingest"
	"rag-knowledge-backend/internal/queue"
	"rag-knowledge-backend/internal/storage"
	"rag-knowledge-backend/middleware"
	"rag-knowledge-backend/models"
	"rag-knowledge-backend/utils"
)

// SetupIngestRoutes registers document ingestion and job endpoints.
func SetupIngestRoutes(router *gin.Engine, cfg *config.Config, docs ingest.DocumentStore, jobs ingest.JobStore, objects storage.ObjectStore, enqueuer queue.Enqueuer, cancels ingest.CancelFlags, auth *middleware.AuthMiddleware) {
	api := router.Group("/api", auth.RequireAuth())

	api.POST("/ingest/upload", handleUpload(cfg, docs, jobs, objects, enqueuer))
	api.POST("/ingest/scrape", handleScrape(docs, jobs, enqueuer))
	api.GET("/jobs/:jobID", handleJobStatus(jobs))
	api.POST("/jobs/:jobID/cancel", handleJobCancel(jobs, cancels))
}

func handleUpload(cfg *config.Config, docs ingest.DocumentStore, jobs ingest.JobStore, objects storage.ObjectStore, enqueuer queue.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}

		fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
		if !allowedType(cfg.AllowedTypes, fileType) {
			utils.RespondWithBadRequest(c, "Unsupported file type", gin.H{
				"file_type": fileType,
				"allowed":   cfg.AllowedTypes,
			})
			return
		}

		raw := make([]byte, header.Size)
		if _, err := io.ReadFull(file, raw); err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", nil)
			return
		}

		documentID := uuid.NewString()
		if err := objects.SaveRaw(ownerID, documentID, raw); err != nil {
			utils.RespondWithInternalError(c, "Failed to store uploaded file", nil)
			return
		}

		doc := &models.Document{
			ID:         documentID,
			OwnerID:    ownerID,
			SourceKind: models.SourceUpload,
			FileType:   fileType,
			Title:      header.Filename,
			Status:     models.StatusPending,
		}
		job, err := createJobAndEnqueue(c, docs, jobs, enqueuer, doc)
		if err != nil {
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":      job.ID,
			"documentId": documentID,
		})
	}
}

type scrapeRequest struct {
	URL string `json:"url" binding:"required"`
}

func handleScrape(docs ingest.DocumentStore, jobs ingest.JobStore, enqueuer queue.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)

		var req scrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A url field is required", nil)
			return
		}
		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			utils.RespondWithBadRequest(c, "Invalid URL", gin.H{"url": req.URL})
			return
		}

		doc := &models.Document{
			ID:         uuid.NewString(),
			OwnerID:    ownerID,
			SourceKind: models.SourceScrape,
			SourceURL:  req.URL,
			Title:      req.URL,
			Status:     models.StatusPending,
		}
		job, err := createJobAndEnqueue(c, docs, jobs, enqueuer, doc)
		if err != nil {
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":      job.ID,
			"documentId": doc.ID,
		})
	}
}

// createJobAndEnqueue persists the document and its queued job, then hands
// the task to the broker. Responses for failure cases are written here.
func createJobAndEnqueue(c *gin.Context, docs ingest.DocumentStore, jobs ingest.JobStore, enqueuer queue.Enqueuer, doc *models.Document) (*models.IngestJob, error) {
	ctx := c.Request.Context()

	if err := docs.Create(ctx, doc); err != nil {
		utils.RespondWithInternalError(c, "Failed to create document record", nil)
		return nil, err
	}

	job := &models.IngestJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Kind:       doc.SourceKind,
	}
	if err := jobs.Create(ctx, job); err != nil {
		utils.RespondWithInternalError(c, "Failed to create ingestion job", nil)
		return nil, err
	}

	task, err := queue.NewIngestTask(job.ID, doc.ID, doc.OwnerID)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build ingestion task", nil)
		return nil, err
	}
	if _, err := enqueuer.EnqueueContext(ctx, task); err != nil {
		utils.RespondWithInternalError(c, "Failed to enqueue ingestion task", nil)
		return nil, err
	}
	return job, nil
}

func handleJobStatus(jobs ingest.JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)
		jobID := c.Param("jobID")

		job, err := jobs.Get(c.Request.Context(), ownerID, jobID)
		if err != nil {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		c.JSON(http.StatusOK, job.Status())
	}
}

func handleJobCancel(jobs ingest.JobStore, cancels ingest.CancelFlags) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetOwnerID(c)
		jobID := c.Param("jobID")

		job, err := jobs.Get(c.Request.Context(), ownerID, jobID)
		if err != nil {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		if job.Terminal() {
			utils.RespondWithError(c, http.StatusConflict, "job_terminal",
				"Job already finished", gin.H{"state": job.State})
			return
		}

		if err := cancels.Set(c.Request.Context(), jobID); err != nil {
			utils.RespondWithInternalError(c, "Failed to request cancellation", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"jobId":       jobID,
			"requestedAt": time.Now().UTC(),
		})
	}
}

func allowedType(allowed []string, t string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), t) {
			return true
		}
	}
	return false
}
