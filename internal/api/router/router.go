package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dealscout/pipeline/internal/api/handler"
	"github.com/dealscout/pipeline/internal/metrics"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "pipeline-api-service",
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pipeline-api-service",
		})
	})

	// Metrics endpoint, plain text exposition
	r.GET("/metrics", metrics.GinHandler(deps.Registry))

	// Initialize handlers
	jobHandler := handler.NewJobHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// POST /api/v1/jobs/bulk - Expand a bulk request into jobs
			jobs.POST("/bulk", jobHandler.BulkCreateJobs)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		webhooks := v1.Group("/webhooks")
		{
			// POST /api/v1/webhooks/subscriptions - Register a subscription
			webhooks.POST("/subscriptions", webhookHandler.CreateSubscription)

			// GET /api/v1/webhooks/subscriptions/:id - Get subscription details
			webhooks.GET("/subscriptions/:id", webhookHandler.GetSubscription)

			// PUT /api/v1/webhooks/subscriptions/:id - Update a subscription
			webhooks.PUT("/subscriptions/:id", webhookHandler.UpdateSubscription)

			// DELETE /api/v1/webhooks/subscriptions/:id - Deactivate a subscription
			webhooks.DELETE("/subscriptions/:id", webhookHandler.DeactivateSubscription)

			// GET /api/v1/webhooks/failures - List unresolved delivery failures
			webhooks.GET("/failures", webhookHandler.ListFailures)

			// POST /api/v1/webhooks/failures/:id/replay - Replay one failure
			webhooks.POST("/failures/:id/replay", webhookHandler.ReplayFailure)

			// POST /api/v1/webhooks/failures/replay - Replay all matching failures
			webhooks.POST("/failures/replay", webhookHandler.ReplayAllFailures)
		}
	}

	return r
}
