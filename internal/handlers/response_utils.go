package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// RespondWithError sends the standardized JSON error envelope.
func RespondWithError(c *gin.Context, httpStatus int, appErrorCode string, message string, details interface{}) {
	c.JSON(httpStatus, models.APIError{
		Code:    appErrorCode,
		Message: message,
		Details: details,
	})
}

// RespondWithSuccess sends a JSON success response, or just the status when
// there is no body (204).
func RespondWithSuccess(c *gin.Context, httpStatus int, data interface{}) {
	if data != nil {
		c.JSON(httpStatus, data)
	} else {
		c.Status(httpStatus)
	}
}
