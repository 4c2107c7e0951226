package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/service"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// WarmEventsPayload identifies the cache row to rebuild.
type WarmEventsPayload struct {
	UserID     uuid.UUID `json:"userId"`
	WorkflowID uuid.UUID `json:"workflowId"`
}

// Enqueuer is the part of *asynq.Client the warmer needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Warmer struct {
	client    Enqueuer
	retention time.Duration
}

func NewWarmer(client Enqueuer) *Warmer {
	return &Warmer{client: client, retention: time.Hour}
}

var _ service.CacheWarmer = (*Warmer)(nil)

// ScheduleRefresh enqueues one warm task per (user, workflow, second). A
// duplicate schedule for the same instant is not an error.
func (w *Warmer) ScheduleRefresh(ctx context.Context, userID, workflowID uuid.UUID, at time.Time) error {
	task, err := NewWarmEventsTask(userID, workflowID)
	if err != nil {
		return err
	}

	taskID := fmt.Sprintf("%s:%s:%s:%d", constants.TaskCalendarWarmEvents, userID, workflowID, at.Unix())
	info, err := w.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(constants.QueueCalendar),
		asynq.TaskID(taskID),
		asynq.MaxRetry(1),
		asynq.Retention(w.retention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debug("Warmer:ScheduleRefresh:Duplicate", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue warm task: %w", err)
	}

	logger.Info("Warmer:ScheduleRefresh", "task_id", info.ID, "queue", info.Queue, "process_at", at)
	return nil
}

func NewWarmEventsTask(userID, workflowID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(WarmEventsPayload{UserID: userID, WorkflowID: workflowID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(constants.TaskCalendarWarmEvents, payload), nil
}
