package service

import (
	"calendar-aggregator/modules/calendar/entity"

	"github.com/google/uuid"
)

// VisibilityIndex maps account id to its explicit enabled flag for one workflow.
type VisibilityIndex map[uuid.UUID]bool

func NewVisibilityIndex(rows []entity.WorkflowVisibility) VisibilityIndex {
	idx := make(VisibilityIndex, len(rows))
	for _, r := range rows {
		idx[r.CalendarAccountID] = r.Enabled
	}
	return idx
}

// IsAccountEnabled treats a missing row as enabled.
func (v VisibilityIndex) IsAccountEnabled(accountID uuid.UUID) bool {
	enabled, ok := v[accountID]
	if !ok {
		return true
	}
	return enabled
}
