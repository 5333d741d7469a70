package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
)

// DataHandler exposes row-level access to generated tables: submissions in,
// query results out.
type DataHandler struct {
	svc *services.ServiceManager
}

func NewDataHandler(svc *services.ServiceManager) *DataHandler {
	return &DataHandler{svc: svc}
}

type submitRequest struct {
	SectionID   string                 `json:"sectionId,omitempty"`
	ParentRowID string                 `json:"parentRowId,omitempty"`
	Values      map[string]interface{} `json:"values"`
}

// SubmitRow handles POST /api/forms/:formId/rows
func (h *DataHandler) SubmitRow(c *gin.Context) {
	var req submitRequest
	if !BindJSON(c, &req) {
		return
	}

	rowID, err := h.svc.Forms.SubmitRow(c.Request.Context(), c.Param("formId"), req.SectionID, req.ParentRowID, req.Values)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rowId": rowID})
}

// QueryRows handles GET /api/forms/:formId/rows
func (h *DataHandler) QueryRows(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	sectionID := c.Query("sectionId")

	filters := map[string]interface{}{}
	if parent := c.Query("parentRowId"); parent != "" {
		filters["parent_ref"] = parent
	}

	rows, err := h.svc.Forms.QueryRows(c.Request.Context(), c.Param("formId"), sectionID, filters, limit, offset)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondData(c, http.StatusOK, "rows", rows)
}

// GetTableSchema handles GET /api/forms/:formId/schema - the live physical
// layout, useful for drift checks against the registry
func (h *DataHandler) GetTableSchema(c *gin.Context) {
	form, err := h.svc.Forms.GetForm(c.Request.Context(), c.Param("formId"))
	if err != nil {
		RespondAppError(c, err)
		return
	}

	columns, err := h.svc.Tables.GetTableColumns(c.Request.Context(), form.TableName)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	drift, err := h.svc.Forms.ValidateSchema(c.Request.Context(), form.ID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schema": models.TableSchema{TableName: form.TableName, Columns: columns},
		"drift":  drift,
	})
}
