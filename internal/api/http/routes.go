package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes for the production service. guards
// run before the handlers that create jobs or halt records.
func SetupRoutes(router *gin.Engine, handlers *Handlers, guards ...gin.HandlerFunc) {
	create := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, guards...), h)
	}

	v1 := router.Group("/api/v1")
	{
		catalog := v1.Group("/catalog")
		{
			catalog.GET("/departments", handlers.ListDepartments)
			catalog.GET("/departments/:department/components", handlers.ListComponents)
			catalog.GET("/departments/:department/components/:component/materials", handlers.ListMaterials)
		}

		production := v1.Group("/production")
		{
			jobs := production.Group("/jobs")
			jobs.POST("", create(handlers.CreateJobs)...)
			jobs.GET("", handlers.ListJobs)
			jobs.DELETE("/completed", handlers.PurgeCompleted)
			jobs.GET("/:jobId", handlers.GetJob)
			jobs.POST("/:jobId/stages/:stageIndex/toggle", handlers.ToggleStage)
			jobs.PATCH("/:jobId/stages/:stageId", handlers.RenameStage)
			jobs.POST("/:jobId/advance", handlers.AdvanceJob)

			production.GET("/board", handlers.GetBoard)
			production.POST("/board/reload", handlers.ReloadBoard)
		}

		halts := v1.Group("/halt-durations")
		{
			halts.POST("", create(handlers.AppendHaltRecord)...)
			halts.GET("", handlers.ListHaltRecords)
			halts.GET("/export", handlers.ExportHaltRecords)
			halts.GET("/work-orders/:workOrder", handlers.QueryHaltRecords)
		}
	}
}
