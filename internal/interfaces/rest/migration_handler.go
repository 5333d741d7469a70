package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// MigrationHandler exposes the audit trail: history, rollback, backups and
// queue introspection.
type MigrationHandler struct {
	svc *services.ServiceManager
}

func NewMigrationHandler(svc *services.ServiceManager) *MigrationHandler {
	return &MigrationHandler{svc: svc}
}

// History handles GET /api/forms/:formId/migrations
func (h *MigrationHandler) History(c *gin.Context) {
	records, err := h.svc.Migrations.History(c.Request.Context(), c.Param("formId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "migrations", records)
}

// Get handles GET /api/migrations/:migrationId
func (h *MigrationHandler) Get(c *gin.Context) {
	record, err := h.svc.Migrations.Get(c.Request.Context(), c.Param("migrationId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "migration", record)
}

// Rollback handles POST /api/migrations/:migrationId/rollback
func (h *MigrationHandler) Rollback(c *gin.Context) {
	record, err := h.svc.Migrations.Rollback(c.Request.Context(), c.Param("migrationId"))
	if err != nil && !apperrors.IsPartialRestore(err) {
		RespondAppError(c, err)
		return
	}

	status := http.StatusOK
	body := gin.H{"migration": record}
	if err != nil {
		status = http.StatusPartialContent
		body["message"] = err.Error()
	}
	c.JSON(status, body)
}

// GetBackup handles GET /api/backups/:backupId
func (h *MigrationHandler) GetBackup(c *gin.Context) {
	backup, err := h.svc.Migrations.GetBackup(c.Request.Context(), c.Param("backupId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "backup", backup)
}

// RestoreBackup handles POST /api/backups/:backupId/restore
func (h *MigrationHandler) RestoreBackup(c *gin.Context) {
	restored, err := h.svc.Migrations.RestoreBackup(c.Request.Context(), c.Param("backupId"))
	if err != nil && !apperrors.IsPartialRestore(err) {
		RespondAppError(c, err)
		return
	}

	status := http.StatusOK
	body := gin.H{"restoredRows": restored}
	if err != nil {
		status = http.StatusPartialContent
		body["message"] = err.Error()
	}
	c.JSON(status, body)
}

// QueueStats handles GET /api/migrations/queue
func (h *MigrationHandler) QueueStats(c *gin.Context) {
	RespondData(c, http.StatusOK, "queues", h.svc.Migrations.QueueStats())
}
