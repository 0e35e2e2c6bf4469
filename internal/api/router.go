package api

import (
	"github.com/gin-gonic/gin"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api/auth"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api/node"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/api/results"
	taskapi "github.com/tcJackClay/HuanuCanvas-sub001/internal/api/task"
)

// Deps collects the handlers wired by the service main.
type Deps struct {
	Tasks   *taskapi.Handler
	Nodes   *node.Handler
	Results *results.Handler
}

// SetupRouter configures all routes
func SetupRouter(r *gin.Engine, deps Deps) {
	r.Use(CORSMiddleware())

	// Health check
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "HuanuCanvas task service is running",
			"version": "1.0.0",
		})
	})

	r.POST("/api/auth/login", auth.Login)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		taskGroup := api.Group("/tasks")
		{
			taskGroup.POST("", deps.Tasks.Submit)
			taskGroup.GET("", deps.Tasks.List)
			taskGroup.GET("/stats", deps.Tasks.Stats)
			taskGroup.POST("/import", deps.Tasks.Import)
			taskGroup.GET("/:task_id", deps.Tasks.Get)
			taskGroup.GET("/:task_id/wait", deps.Tasks.Wait)
			taskGroup.POST("/:task_id/cancel", deps.Tasks.Cancel)
			taskGroup.POST("/:task_id/retry", deps.Tasks.Retry)
			taskGroup.DELETE("/:task_id", deps.Tasks.Delete)
		}

		api.POST("/assets", deps.Tasks.UploadAsset)

		nodeGroup := api.Group("/nodes")
		{
			nodeGroup.POST("/:node_id/inputs", deps.Nodes.SetInput)
			nodeGroup.GET("/:node_id", deps.Nodes.View)
			nodeGroup.DELETE("/:node_id", deps.Nodes.Reset)
		}

		resultGroup := api.Group("/results")
		{
			resultGroup.GET("", deps.Results.Search)
			resultGroup.GET("/:task_id", deps.Results.Get)
			resultGroup.DELETE("/:task_id", deps.Results.Delete)
		}
	}
}

// CORSMiddleware provides CORS support
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
