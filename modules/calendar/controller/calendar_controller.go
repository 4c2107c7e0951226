package controller

import (
	"strings"

	"calendar-aggregator/core/errors"
	"calendar-aggregator/modules/calendar/dto"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// GetEvents returns the merged upcoming events of a workflow.
// GET /calendar/events?workflowId=
func (controller *CalendarController) GetEvents(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := currentUserID(c)
	if !ok {
		return controller.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	workflowID, err := parseWorkflowID(c.QueryParam("workflowId"))
	if err != nil {
		return err
	}

	resp, err := controller.CalendarService.GetWorkflowEvents(ctx, userID, workflowID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}

	return controller.SuccessResponse(c, resp)
}

// ListAccounts returns the user's accounts with their visibility in a workflow.
// GET /calendar/accounts?workflowId=
func (controller *CalendarController) ListAccounts(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := currentUserID(c)
	if !ok {
		return controller.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	workflowID, err := parseWorkflowID(c.QueryParam("workflowId"))
	if err != nil {
		return err
	}

	resp, err := controller.CalendarService.ListAccounts(ctx, userID, workflowID)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}

	return controller.SuccessResponse(c, resp)
}

// UpdateVisibility toggles one account inside a workflow.
// PUT /calendar/accounts/:accountId/visibility
func (controller *CalendarController) UpdateVisibility(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := currentUserID(c)
	if !ok {
		return controller.Unauthorized(errors.ErrUnauthorized, "Unauthorized")
	}

	accountID, err := uuid.Parse(c.Param("accountId"))
	if err != nil {
		return controller.BadRequest(errors.ErrInvalidInput, "Invalid accountId")
	}

	requestData := new(dto.UpdateVisibilityRequest)
	if err := c.Bind(requestData); err != nil {
		return controller.BadRequest(errors.ErrInvalidRequestData, "Invalid request data")
	}
	if requestData.Enabled == nil {
		return controller.BadRequest(errors.ErrInvalidInput, "enabled is required")
	}

	workflowID, err := parseWorkflowID(requestData.WorkflowID)
	if err != nil {
		return err
	}

	resp, err := controller.CalendarService.SetAccountVisibility(ctx, userID, accountID, workflowID, *requestData.Enabled)
	if err != nil {
		return controller.ErrorResponse(c, err)
	}

	return controller.SuccessResponse(c, resp)
}

func parseWorkflowID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, badRequest("Missing workflowId")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("Invalid workflowId")
	}
	return id, nil
}
