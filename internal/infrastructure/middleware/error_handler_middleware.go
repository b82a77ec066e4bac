package middleware

import (
	"net/http"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware turns the last error attached with c.Error into a
// JSON response. AppErrors keep their code and status; anything else is a 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		requestID := RequestIDFrom(c)

		if appErr := errors.GetAppError(err); appErr != nil {
			log := logger.Warnw
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				log = logger.Errorw
			}
			log("request failed",
				"request_id", requestID,
				"code", appErr.Code,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
				"error", err.Error(),
			)

			body := gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			}
			if len(appErr.Context) > 0 {
				body["details"] = appErr.Context
			}
			c.JSON(appErr.HTTPStatus, body)
			return
		}

		logger.Errorw("unhandled error",
			"request_id", requestID,
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		internal := errors.NewInternalError("Internal server error")
		c.JSON(internal.HTTPStatus, gin.H{
			"error":   string(internal.Code),
			"message": internal.Message,
		})
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"request_id", RequestIDFrom(c),
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				internal := errors.NewInternalError("Internal server error")
				c.AbortWithStatusJSON(internal.HTTPStatus, gin.H{
					"error":   string(internal.Code),
					"message": internal.Message,
				})
			}
		}()

		c.Next()
	}
}
