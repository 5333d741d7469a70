package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
)

// NewRouter builds the HTTP surface over the engine
func NewRouter(svc *services.ServiceManager) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	forms := NewFormHandler(svc)
	migrations := NewMigrationHandler(svc)
	data := NewDataHandler(svc)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/forms", forms.CreateForm)
		api.GET("/forms/:formId", forms.GetForm)
		api.DELETE("/forms/:formId", forms.DeleteForm)
		api.POST("/forms/:formId/plan", forms.PlanEdit)
		api.POST("/forms/:formId/apply", forms.ApplyEdit)

		api.GET("/forms/:formId/migrations", migrations.History)
		api.GET("/migrations/queue", migrations.QueueStats)
		api.GET("/migrations/:migrationId", migrations.Get)
		api.POST("/migrations/:migrationId/rollback", migrations.Rollback)
		api.GET("/backups/:backupId", migrations.GetBackup)
		api.POST("/backups/:backupId/restore", migrations.RestoreBackup)

		api.POST("/forms/:formId/rows", data.SubmitRow)
		api.GET("/forms/:formId/rows", data.QueryRows)
		api.GET("/forms/:formId/schema", data.GetTableSchema)
	}

	return router
}
