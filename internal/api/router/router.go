package router

import (
	"net/http"

	"github.com/cuongbtq/snow-market/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options configures the optional parts of the router
type Options struct {
	// Limiter is nil when rate limiting is disabled
	Limiter         *RateLimiter
	ClaimsPerMinute int
	// MetricsPath is empty when metrics are not exposed
	MetricsPath string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "snow-market-api",
		})
	})

	if opts.MetricsPath != "" && deps.Metrics != nil {
		r.GET(opts.MetricsPath, gin.WrapH(deps.Metrics.Handler()))
	}

	jobHandler := handler.NewJobHandler(deps)
	accountHandler := handler.NewAccountHandler(deps)
	adminHandler := handler.NewAdminHandler(deps)
	webhookHandler := handler.NewWebhookHandler(deps)

	v1 := r.Group("/api/v1")

	// Signed by the provider, not by a principal
	v1.POST("/webhooks/payments", webhookHandler.Receive)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(deps.Resolver))
	{
		addresses := authed.Group("/addresses")
		{
			addresses.POST("", accountHandler.CreateAddress)
			addresses.GET("", accountHandler.ListAddresses)
		}

		jobs := authed.Group("/jobs")
		{
			// POST /api/v1/jobs - Book a one-time job
			jobs.POST("", jobHandler.BookJob)

			// GET /api/v1/jobs - The caller's jobs as a homeowner
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/open - Open jobs near a point
			jobs.GET("/open", jobHandler.ListOpenJobs)

			jobs.GET("/:job_id", jobHandler.GetJob)

			claimChain := []gin.HandlerFunc{}
			if opts.Limiter != nil {
				claimChain = append(claimChain, opts.Limiter.ClaimLimit(opts.ClaimsPerMinute))
			}
			claimChain = append(claimChain, jobHandler.ClaimJob)
			jobs.POST("/:job_id/claim", claimChain...)

			jobs.POST("/:job_id/start", jobHandler.StartJob)
			jobs.POST("/:job_id/complete", jobHandler.CompleteJob)
		}

		workers := authed.Group("/workers")
		{
			workers.POST("/onboard", accountHandler.Onboard)
			workers.GET("/me", accountHandler.GetProfile)
			workers.PATCH("/me", accountHandler.UpdateProfile)
		}

		adminGroup := authed.Group("/admin")
		adminGroup.Use(AdminOnly(deps.Resolver))
		{
			adminGroup.GET("/settings", adminHandler.GetSettings)
			adminGroup.PATCH("/settings", adminHandler.UpdateSettings)
			adminGroup.GET("/transactions", adminHandler.GetTransactions)
			adminGroup.PATCH("/workers/:worker_id", adminHandler.UpdateWorker)
		}
	}

	return r
}
