package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/novasendhq/nova-sender-backend/internal/handlers"
	"github.com/novasendhq/nova-sender-backend/internal/middleware"
)

// SetupRouter configures the Gin router with the campaign execution routes
func SetupRouter(executionHandler *handlers.CampaignExecutionHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
				"time":   time.Now().Format(time.RFC3339),
			})
		})

		campaigns := api.Group("/campaigns")
		{
			campaigns.POST("/:id/queue", executionHandler.QueueCampaign)
			campaigns.POST("/:id/start", executionHandler.StartCampaign)
			campaigns.POST("/:id/pause", executionHandler.PauseCampaign)
			campaigns.POST("/:id/resume", executionHandler.ResumeCampaign)
			campaigns.POST("/:id/cancel", executionHandler.CancelCampaign)

			campaigns.GET("/:id/progress", executionHandler.GetProgress)
			campaigns.GET("/:id/distribution", executionHandler.GetDistribution)
			campaigns.GET("/:id/logs", executionHandler.GetLogs)
			campaigns.GET("/:id/events", executionHandler.StreamEvents)
		}
	}

	return r
}
