package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// ListERPConnections returns every stored connection. API keys never leave
// the server (json:"-" on the model).
func (h *Handler) ListERPConnections(c *gin.Context) {
	var conns []models.ERPConnection
	if err := h.db.Order("created_at desc").Find(&conns).Error; err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list ERP connections", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, conns)
}

// CreateERPConnection registers a connection and makes it the active one.
// At most one connection is active, so previous ones are deactivated in the
// same transaction.
func (h *Handler) CreateERPConnection(c *gin.Context) {
	var req models.CreateERPConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	conn := models.ERPConnection{
		ID:        uuid.New(),
		Name:      req.Name,
		BaseURL:   req.BaseURL,
		APIKey:    req.APIKey,
		Endpoints: req.Endpoints,
		IsActive:  true,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ERPConnection{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&conn).Error
	})
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create ERP connection")
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to create ERP connection", nil)
		return
	}
	RespondWithSuccess(c, http.StatusCreated, conn)
}

// TestERPConnection probes the active connection's health endpoint.
func (h *Handler) TestERPConnection(c *gin.Context) {
	status, err := h.erpClient.TestConnection(c.Request.Context())
	if err != nil {
		RespondWithError(c, http.StatusBadGateway, models.ErrorCodeERPConnectionError, "ERP health probe failed", gin.H{"reason": err.Error()})
		return
	}
	RespondWithSuccess(c, http.StatusOK, gin.H{
		"reachable":   status >= 200 && status < 300,
		"status_code": status,
	})
}
