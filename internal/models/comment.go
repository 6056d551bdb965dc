package models

import "time"

// Comment: заметка к экземпляру задачи. Не редактируется, удаляет только администратор.
type Comment struct {
	ID             int64     `json:"id"`
	Kind           FlowKind  `json:"kind"`
	TaskInstanceID int64     `json:"task_instance_id"`
	AuthorID       int64     `json:"author_id"`
	Body           string    `json:"body"`
	Mentions       []int64   `json:"mentions,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
