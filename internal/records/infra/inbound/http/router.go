package http

import "github.com/gin-gonic/gin"

func RegisterRecordRoutes(r *gin.Engine, handler *RecordHandler) {
	records := r.Group("/records")
	{
		records.POST("/:entityType", handler.CreateRecord)
		records.GET("/:entityType/:id", handler.GetRecord)
		records.PUT("/:entityType/:id", handler.UpdateRecord)
		records.DELETE("/:entityType/:id", handler.DeleteRecord)
	}
}
