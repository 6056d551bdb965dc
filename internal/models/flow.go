package models

import "time"

// FlowKind различает процесс продажи (резерв) и процесс выплаты комиссии брокеру.
type FlowKind string

const (
	FlowKindSale    FlowKind = "sale"
	FlowKindPayment FlowKind = "payment"
)

func ParseFlowKind(s string) (FlowKind, bool) {
	switch FlowKind(s) {
	case FlowKindSale, FlowKindPayment:
		return FlowKind(s), true
	}
	return "", false
}

type FlowStatus string

const (
	FlowPending    FlowStatus = "pending"
	FlowInProgress FlowStatus = "in_progress"
	FlowCompleted  FlowStatus = "completed"
)

// Flow is one workflow instance bound to a reservation (sale) or a broker commission (payment).
type Flow struct {
	ID              int64      `json:"id"`
	Kind            FlowKind   `json:"kind"`
	OwnerID         int64      `json:"owner_id"`    // reservation_id | broker_commission_id
	TemplateID      int64      `json:"template_id"` // flow_id
	CurrentStageID  *int64     `json:"current_stage_id,omitempty"`
	Status          FlowStatus `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	IsSecondPayment bool       `json:"is_second_payment"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Stage belongs to a flow template, not to a flow instance.
type Stage struct {
	ID         int64  `json:"id"`
	TemplateID int64  `json:"template_id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

type TemplateTask struct {
	ID      int64  `json:"id"`
	StageID int64  `json:"stage_id"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
}
