package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/enrolab/enrolab/internal/records/application"
	"github.com/enrolab/enrolab/internal/records/domain"
)

// RecordHandler encapsula los endpoints HTTP del lado de escritura.
type RecordHandler struct {
	service *application.RecordService
}

// NewRecordHandler crea un nuevo RecordHandler
func NewRecordHandler(service *application.RecordService) *RecordHandler {
	return &RecordHandler{service: service}
}

// correlationID propaga el identificador de la petición hacia el sobre.
func correlationID(c *gin.Context) string {
	if id := c.GetHeader("X-Correlation-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// ---------------- Handlers ----------------

// CreateRecord endpoint POST /records/:entityType
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	var req struct {
		Name   string `json:"name" binding:"required"`
		Email  string `json:"email" binding:"required,email"`
		Status string `json:"status"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Status == "" {
		req.Status = "active"
	}

	entity := domain.EntityType(c.Param("entityType"))
	record, err := h.service.CreateRecord(c.Request.Context(), entity, req.Name, req.Email, req.Status, correlationID(c))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEntity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// GetRecord endpoint GET /records/:entityType/:id
func (h *RecordHandler) GetRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		if err == domain.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

// UpdateRecord endpoint PUT /records/:entityType/:id
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	var req struct {
		Name   *string `json:"name,omitempty"`
		Email  *string `json:"email,omitempty"`
		Status *string `json:"status,omitempty"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		if err == domain.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		record.Name = *req.Name
	}
	if req.Email != nil {
		record.Email = *req.Email
	}
	if req.Status != nil {
		record.Status = *req.Status
	}

	if err := h.service.UpdateRecord(c.Request.Context(), record, correlationID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteRecord endpoint DELETE /records/:entityType/:id
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	if err := h.service.DeleteRecord(c.Request.Context(), id, correlationID(c)); err != nil {
		if err == domain.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}
