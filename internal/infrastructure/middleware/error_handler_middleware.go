package middleware

import (
	"errors"
	"net/http"

	"roomcast/internal/core/domain"
	"roomcast/internal/core/services"
	apperrors "roomcast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware translates errors collected by handlers into
// structured HTTP responses.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		appErr := apperrors.GetAppError(err)
		if appErr == nil {
			appErr = translateDomainError(c, err)
		}
		if appErr != nil {
			logger.Warnw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(apperrors.ErrCodeInternal),
			"message": "Internal server error",
		})
	}
}

// translateDomainError maps well-known domain errors onto HTTP statuses so
// handlers can attach them without wrapping.
func translateDomainError(c *gin.Context, err error) *apperrors.AppError {
	room := c.Param("name")
	switch {
	case errors.Is(err, domain.ErrRoomNameTaken):
		return apperrors.NewRoomNameTakenError(room)
	case errors.Is(err, domain.ErrRoomNotFound):
		return apperrors.NewRoomNotFoundError(room)
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrExpiredToken):
		return apperrors.NewInvalidSessionError("invalid or expired token")
	}
	var denied *domain.PermissionDeniedError
	if errors.As(err, &denied) {
		return apperrors.NewPermissionDeniedError(denied.Permission)
	}
	return nil
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
