package worker

import (
	"context"
	"fmt"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/service"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type WarmEventsHandler struct {
	service service.CalendarService
}

func NewWarmEventsHandler(svc service.CalendarService) *WarmEventsHandler {
	return &WarmEventsHandler{service: svc}
}

// ProcessTask rebuilds the cache row. Malformed payloads are dropped
// without retry.
func (h *WarmEventsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p WarmEventsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.Error("WarmEventsHandler:ProcessTask:Decode:Error", "error", err)
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.UserID == uuid.Nil || p.WorkflowID == uuid.Nil {
		return fmt.Errorf("empty user or workflow id: %w", asynq.SkipRetry)
	}

	logger.Info("WarmEventsHandler:ProcessTask", "user_id", p.UserID, "workflow_id", p.WorkflowID)
	if err := h.service.RefreshWorkflowEvents(ctx, p.UserID, p.WorkflowID); err != nil {
		logger.Error("WarmEventsHandler:ProcessTask:Refresh:Error", "error", err,
			"user_id", p.UserID, "workflow_id", p.WorkflowID)
		return err
	}
	return nil
}

// Register mounts the calendar task handlers on mux.
func (h *WarmEventsHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(constants.TaskCalendarWarmEvents, h)
}
