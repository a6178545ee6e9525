package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/pkg/apperror"
)

// ErrorBody is the structured failure payload: kind plus human message.
type ErrorBody struct {
	Kind    apperror.Kind  `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse defines the JSON structure for error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a JSON error response.
// It checks if the error is an AppError to determine the status code.
// If it's not an AppError, it logs the cause and answers 500 Internal Server Error.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Code >= http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("kind", string(appErr.Kind)),
				zap.Error(err),
			)
		}
		c.JSON(appErr.Code, ErrorResponse{Error: ErrorBody{
			Kind:    appErr.Kind,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Kind:    apperror.KindInternal,
		Message: "internal server error",
	}})
}

// BadRequest answers 400 for malformed input that never reached a service.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Kind:    apperror.KindValidation,
		Message: message,
	}})
}
