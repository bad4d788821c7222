package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/swipswaps/paddle-ocr/api/handlers"
	"github.com/swipswaps/paddle-ocr/api/middleware"
)

// SetupRoutes wires the shell API.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	v1.GET("/health", h.Shell.Health)

	jobs := v1.Group("/jobs")
	{
		jobs.POST("", h.Jobs.Run)
		jobs.GET("/stream", h.Jobs.Stream)
	}

	scans := v1.Group("/scans")
	{
		scans.GET("", h.Shell.ListScans)
		scans.DELETE("/:id", h.Shell.DeleteScan)
	}
}
