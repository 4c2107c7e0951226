package router

import (
	"calendar-aggregator/modules/calendar/controller"

	"github.com/labstack/echo/v4"
)

type CalendarRouter struct {
	controller *controller.CalendarController
}

func NewCalendarRouter(controller *controller.CalendarController) *CalendarRouter {
	return &CalendarRouter{
		controller: controller,
	}
}

func (r *CalendarRouter) Setup(e *echo.Echo, auth echo.MiddlewareFunc) {
	calendarRoutes := e.Group("/calendar")
	calendarRoutes.Use(auth)

	// Events
	calendarRoutes.GET("/events", r.controller.GetEvents)

	// Accounts and per-workflow visibility
	calendarRoutes.GET("/accounts", r.controller.ListAccounts)
	calendarRoutes.PUT("/accounts/:accountId/visibility", r.controller.UpdateVisibility)
}
