package middleware

import (
	"net/http"
	"strings"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/controller"
	"calendar-aggregator/core/errors"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/utils"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware resolves the session bearer token into *utils.TokenClaims
// stored under constants.ContextTokenData.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrMissingAuthorizationHeader, "Unauthorized")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrInvalidTokenFormat, "Unauthorized")
			}

			claims, err := utils.ValidateAndParseToken(strings.TrimSpace(parts[1]), secret)
			if err != nil {
				logger.Warn("AuthMiddleware:ValidateAndParseToken:Error", "error", err, "path", c.Path())
				return controller.NewErrorResponse(http.StatusUnauthorized, errors.ErrUnauthorized, "Unauthorized")
			}

			c.Set(constants.ContextTokenData, claims)
			return next(c)
		}
	}
}
