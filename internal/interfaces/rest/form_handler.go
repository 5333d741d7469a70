package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
)

// FormHandler exposes the form lifecycle: create, read, edit (plan/apply)
// and delete.
type FormHandler struct {
	svc *services.ServiceManager
}

func NewFormHandler(svc *services.ServiceManager) *FormHandler {
	return &FormHandler{svc: svc}
}

// CreateForm handles POST /api/forms
func (h *FormHandler) CreateForm(c *gin.Context) {
	var form models.FormDefinition
	if !BindJSON(c, &form) {
		return
	}

	tables, err := h.svc.Forms.CreateForm(c.Request.Context(), &form)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"form":   form,
		"tables": tables,
	})
}

// GetForm handles GET /api/forms/:formId
func (h *FormHandler) GetForm(c *gin.Context) {
	form, err := h.svc.Forms.GetForm(c.Request.Context(), c.Param("formId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "form", form)
}

// PlanEdit handles POST /api/forms/:formId/plan - a dry run that returns
// the operations an edit would execute, without touching the schema
func (h *FormHandler) PlanEdit(c *gin.Context) {
	var req services.FormEditRequest
	if !BindJSON(c, &req) {
		return
	}

	ops, err := h.svc.Forms.PlanEdit(c.Request.Context(), c.Param("formId"), req)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "operations", ops)
}

// ApplyEdit handles POST /api/forms/:formId/apply - plans the edit and runs
// the operations through the migration queue
func (h *FormHandler) ApplyEdit(c *gin.Context) {
	var req services.FormEditRequest
	if !BindJSON(c, &req) {
		return
	}

	records, err := h.svc.Forms.ApplyEdit(c.Request.Context(), c.Param("formId"), req)
	if err != nil {
		// Partial progress still matters: return what ran with the error.
		c.JSON(StatusForEditError(err), gin.H{
			"migrations": records,
			"message":    err.Error(),
		})
		return
	}
	RespondData(c, http.StatusOK, "migrations", records)
}

// DeleteForm handles DELETE /api/forms/:formId
func (h *FormHandler) DeleteForm(c *gin.Context) {
	if err := h.svc.Forms.DeleteForm(c.Request.Context(), c.Param("formId")); err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Form deleted"})
}
