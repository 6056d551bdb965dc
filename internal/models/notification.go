package models

import "time"

// CollapsedTask hides an assignment from the user's pending counter until ExpiresAt.
// Status and assignment stay untouched.
type CollapsedTask struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	AssignmentID int64     `json:"assignment_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AssignedTask: строка для пересчёта счётчика: одно назначение пользователя
// вместе со статусами задачи и flow.
type AssignedTask struct {
	AssignmentID   int64
	Kind           FlowKind
	TaskInstanceID int64
	FlowStatus     FlowStatus
	TaskStatus     TaskStatus
	CollapsedUntil *time.Time
}

// PendingTaskCount counts tasks requiring the user's attention:
// sale tasks in non-pending flows that are not collapsed (unexpired), plus
// payment tasks in non-pending flows that are neither completed nor blocked.
func PendingTaskCount(tasks []AssignedTask, now time.Time) int {
	n := 0
	for _, t := range tasks {
		if t.FlowStatus == FlowPending {
			continue
		}
		switch t.Kind {
		case FlowKindSale:
			if t.CollapsedUntil != nil && t.CollapsedUntil.After(now) {
				continue
			}
			n++
		case FlowKindPayment:
			if t.TaskStatus == StatusCompleted || t.TaskStatus == StatusBlocked {
				continue
			}
			n++
		}
	}
	return n
}
