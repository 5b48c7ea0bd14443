package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docatlas/internal/faults"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithFault maps a classified error onto the HTTP surface: validation
// problems are the caller's fault, missing rows are 404, unsupported formats
// 422, everything else an opaque 500.
func RespondWithFault(c *gin.Context, err error) {
	switch faults.KindOf(err) {
	case faults.Validation:
		RespondWithError(c, http.StatusBadRequest, "bad_request", err.Error(), nil)
	case faults.NotFound:
		RespondWithError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case faults.Unsupported:
		RespondWithError(c, http.StatusUnprocessableEntity, "unsupported", err.Error(), nil)
	default:
		RespondWithError(c, http.StatusInternalServerError, "internal_error", "Request failed", nil)
	}
}
