package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/mapping"
	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// CreateMapping stores a new column mapping after validating the definition.
func (h *Handler) CreateMapping(c *gin.Context) {
	var req models.CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	m := models.ColumnMapping{
		ID:            uuid.New(),
		MappingName:   req.MappingName,
		Description:   req.Description,
		SourceColumns: req.SourceColumns,
		TargetColumns: req.TargetColumns,
		ERPEndpoint:   req.ERPEndpoint,
		CreatedBy:     CurrentUserID(c),
		IsActive:      true,
	}
	if !h.validDefinition(c, &m) {
		return
	}

	if err := h.db.Create(&m).Error; err != nil {
		h.log.Error().Err(err).Msg("failed to create mapping")
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to create mapping", nil)
		return
	}
	RespondWithSuccess(c, http.StatusCreated, m)
}

// ListMappings returns the caller's active mappings, newest first.
func (h *Handler) ListMappings(c *gin.Context) {
	var mappings []models.ColumnMapping
	err := h.db.
		Where("created_by = ? AND is_active = ?", CurrentUserID(c), true).
		Order("created_at desc").
		Find(&mappings).Error
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list mappings", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, mappings)
}

// GetMapping returns one active mapping owned by the caller.
func (h *Handler) GetMapping(c *gin.Context) {
	m, ok := h.loadMapping(c)
	if !ok {
		return
	}
	RespondWithSuccess(c, http.StatusOK, m)
}

// UpdateMapping applies a partial update and re-validates the result.
// Jobs already running keep their snapshot and are unaffected.
func (h *Handler) UpdateMapping(c *gin.Context) {
	m, ok := h.loadMapping(c)
	if !ok {
		return
	}

	var req models.UpdateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}
	if req.MappingName != nil {
		m.MappingName = *req.MappingName
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.SourceColumns != nil {
		m.SourceColumns = *req.SourceColumns
	}
	if req.TargetColumns != nil {
		m.TargetColumns = *req.TargetColumns
	}
	if req.ERPEndpoint != nil {
		m.ERPEndpoint = *req.ERPEndpoint
	}
	if !h.validDefinition(c, m) {
		return
	}

	if err := h.db.Save(m).Error; err != nil {
		h.log.Error().Err(err).Str("mapping_id", m.ID.String()).Msg("failed to update mapping")
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to update mapping", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, m)
}

// DeleteMapping soft-deletes: the row stays for audit and for jobs that
// reference it, but it disappears from listings and new imports.
func (h *Handler) DeleteMapping(c *gin.Context) {
	m, ok := h.loadMapping(c)
	if !ok {
		return
	}
	if err := h.db.Model(m).Update("is_active", false).Error; err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to delete mapping", nil)
		return
	}
	RespondWithSuccess(c, http.StatusNoContent, nil)
}

func (h *Handler) loadMapping(c *gin.Context) (*models.ColumnMapping, bool) {
	idStr := c.Param("mapping_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid mapping ID format", gin.H{"mapping_id": idStr})
		return nil, false
	}

	var m models.ColumnMapping
	err = h.db.Where("id = ? AND created_by = ? AND is_active = ?", id, CurrentUserID(c), true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeMappingNotFound, "Mapping not found", gin.H{"mapping_id": id})
		return nil, false
	}
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to load mapping", nil)
		return nil, false
	}
	return &m, true
}

// validDefinition runs definition validation and writes the 400 response on
// failure.
func (h *Handler) validDefinition(c *gin.Context, m *models.ColumnMapping) bool {
	err := mapping.ValidateDefinition(m.Snapshot(), h.erpClient.Endpoints())
	if err == nil {
		return true
	}
	var cfgErr *mapping.ConfigurationError
	if errors.As(err, &cfgErr) {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeConfiguration, "Invalid mapping definition", gin.H{"problems": cfgErr.Problems})
		return false
	}
	RespondWithError(c, http.StatusBadRequest, models.ErrorCodeConfiguration, "Invalid mapping definition", gin.H{"reason": err.Error()})
	return false
}
