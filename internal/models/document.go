package models

import "time"

const (
	DocTypeFlowReport           = "flow_report"
	DocTypeCommissionSettlement = "commission_settlement"
)

// Document: сгенерированный PDF; FilePath относителен к files.root_dir.
type Document struct {
	ID        int64     `json:"id"`
	DocType   string    `json:"doc_type"`
	OwnerKind string    `json:"owner_kind"` // sale | payment | commission
	OwnerID   int64     `json:"owner_id"`
	FilePath  string    `json:"file_path"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
