package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fairlead/disclosure-backend/internal/engine"
	"github.com/fairlead/disclosure-backend/internal/requestdata"
	"github.com/fairlead/disclosure-backend/internal/services"
)

type FormHandler struct {
	formService services.FormService
}

func NewFormHandler(formService services.FormService) *FormHandler {
	return &FormHandler{formService: formService}
}

type stepPayload struct {
	Step   int            `json:"step"`
	Values map[string]any `json:"values"`
}

// Create starts a new form record from a first step payload.
func (fh *FormHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	var req stepPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Step == 0 {
		req.Step = 1
	}
	result, err := fh.formService.CreateRecord(c.Request.Context(), rd.UserID, req.Step, req.Values)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List returns the caller's form records, newest first.
func (fh *FormHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	records, err := fh.formService.List(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"records": records})
}

func (fh *FormHandler) Get(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	record, values, err := fh.formService.Get(c.Request.Context(), recordID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"record": record, "values": values})
}

// SaveStep persists one step. Issues in the response are advisory; a
// draft save never fails validation.
func (fh *FormHandler) SaveStep(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step number"})
		return
	}
	var req struct {
		Values map[string]any `json:"values"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := fh.formService.SaveStep(c.Request.Context(), recordID, step, req.Values)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// Validate runs a validation pass without persisting anything. Scope
// defaults to the full form; ?step=n or ?field=id narrows it.
func (fh *FormHandler) Validate(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	scope := engine.FormScope()
	if stepParam := c.Query("step"); stepParam != "" {
		step, err := strconv.Atoi(stepParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid step number"})
			return
		}
		scope = engine.StepScope(step)
	} else if fieldParam := c.Query("field"); fieldParam != "" {
		scope = engine.FieldScope(fieldParam)
	}
	issues, err := fh.formService.Validate(c.Request.Context(), recordID, scope)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"issues": issues})
}

// Submit attempts the draft → submitted transition. A refusal on
// validation errors returns the full issue list with a 400-class status;
// warnings alone do not block.
func (fh *FormHandler) Submit(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	result, err := fh.formService.Submit(c.Request.Context(), recordID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if result.Record == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"issues": result.Issues})
		return
	}
	RespondOK(c, result)
}

// Review resolves a submitted form to approved or rejected.
func (fh *FormHandler) Review(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status required"})
		return
	}
	record, err := fh.formService.Review(c.Request.Context(), recordID, req.Status)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"record": record})
}

func (fh *FormHandler) Delete(c *gin.Context) {
	recordID, ok := fh.ownedRecord(c)
	if !ok {
		return
	}
	if err := fh.formService.Delete(c.Request.Context(), recordID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ownedRecord parses the record id and verifies the caller owns it.
// Records belonging to other users read as not found rather than
// forbidden, to avoid confirming their existence.
func (fh *FormHandler) ownedRecord(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return uuid.Nil, false
	}
	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return uuid.Nil, false
	}
	record, _, err := fh.formService.Get(c.Request.Context(), recordID)
	if err != nil {
		RespondServiceError(c, err)
		return uuid.Nil, false
	}
	if record.UserID != rd.UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "form record not found"})
		return uuid.Nil, false
	}
	return recordID, true
}
