package controller

import (
	"net/http"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/controller"
	"calendar-aggregator/core/errors"
	"calendar-aggregator/core/utils"
	"calendar-aggregator/modules/calendar/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CalendarController struct {
	controller.BaseController
	CalendarService service.CalendarService
}

func NewCalendarController(svc service.CalendarService) *CalendarController {
	return &CalendarController{
		BaseController:  controller.NewBaseController(),
		CalendarService: svc,
	}
}

// currentUserID reads the claims stored by the auth middleware.
func currentUserID(c echo.Context) (uuid.UUID, bool) {
	claims, ok := c.Get(constants.ContextTokenData).(*utils.TokenClaims)
	if !ok || claims == nil || claims.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return claims.UserID, true
}

func badRequest(message string) *echo.HTTPError {
	return controller.NewErrorResponse(http.StatusBadRequest, errors.ErrInvalidInput, message)
}
