package utils

import (
	"net/http"

	"clinic-portal-server/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "requestID"

// ResponseData represents the structure of a standard API response.
type ResponseData struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a standard success response.
func Success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, ResponseData{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Created sends a standard resource created response.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, ResponseData{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Fail sends a failure envelope and stops the handler chain.
func Fail(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ResponseData{
		Success: false,
		Message: message,
	})
}

// RespondError maps err to a failure envelope. Errors from the apperr
// taxonomy keep their status and message; anything else is logged and
// reported as a 500 without detail.
func RespondError(c *gin.Context, err error) {
	if appErr, ok := apperr.As(err); ok {
		if appErr.Err != nil {
			log.Debug().Err(appErr.Err).
				Str("request_id", c.GetString(RequestIDKey)).
				Str("code", appErr.Code).
				Msg("request rejected")
		}
		Fail(c, appErr.StatusCode(), appErr.Message)
		return
	}

	log.Error().Err(err).
		Str("request_id", c.GetString(RequestIDKey)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")
	Fail(c, http.StatusInternalServerError, "Internal server error")
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// NotFound sends a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}
