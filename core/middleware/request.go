package middleware

import (
	"time"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/utils"

	"github.com/labstack/echo/v4"
)

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(constants.HeaderRequestID)
			if id == "" || len(id) > 64 {
				id = utils.GenerateRequestID()
			}
			c.Set(constants.ContextRequestID, id)
			c.Response().Header().Set(constants.HeaderRequestID, id)
			return next(c)
		}
	}
}

func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			keyvals := []interface{}{
				"request_id", c.Get(constants.ContextRequestID),
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency", time.Since(start).String(),
			}
			if c.Response().Status >= 500 {
				logger.Error("HTTP:Request", keyvals...)
			} else {
				logger.Info("HTTP:Request", keyvals...)
			}
			return nil
		}
	}
}
