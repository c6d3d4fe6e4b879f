package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dnguyen/collections-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "collections-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobsGroup := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/bulk-add - Submit a bulk add job
			jobsGroup.POST("/bulk-add", jobHandler.BulkAdd)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobsGroup.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Poll job status
			jobsGroup.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Request cancellation
			jobsGroup.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		// GET /api/v1/collections/:collection_id/count - Preflight count
		v1.GET("/collections/:collection_id/count", jobHandler.GetCollectionCount)
	}

	return r
}
