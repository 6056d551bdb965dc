// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task instance.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusBlocked    TaskStatus = "blocked"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// TaskInstance: изменяемое состояние шаблонной задачи внутри конкретного flow.
// Создаётся лениво, при первом действии над парой (flow, task).
type TaskInstance struct {
	ID          int64      `json:"id"`
	Kind        FlowKind   `json:"kind"`
	FlowID      int64      `json:"flow_id"`
	TaskID      int64      `json:"task_id"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ApplyStatus sets the status and keeps completed_at / assignee_id consistent with it.
// assignees is the current assignment set; it is only used when the task is not completed.
func (t *TaskInstance) ApplyStatus(to TaskStatus, explicitCompletedAt *time.Time, now time.Time, assignees []int64) {
	t.Status = to
	if to == StatusCompleted {
		at := now
		if explicitCompletedAt != nil {
			at = *explicitCompletedAt
		}
		t.CompletedAt = &at
		t.AssigneeID = nil
		return
	}
	t.CompletedAt = nil
	t.AssigneeID = ProjectAssignee(assignees)
}

// Clone returns a copy with its own pointer fields.
func (t *TaskInstance) Clone() *TaskInstance {
	if t == nil {
		return nil
	}
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		c.AssigneeID = &id
	}
	return &c
}
