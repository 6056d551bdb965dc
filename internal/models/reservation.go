package models

import "time"

type Reservation struct {
	ID                int64      `json:"id"`
	ReservationNumber string     `json:"reservation_number"`
	ProjectName       string     `json:"project_name"`
	ApartmentNumber   string     `json:"apartment_number"`
	ClientName        string     `json:"client_name"`
	SellerID          *int64     `json:"seller_id,omitempty"`
	BrokerID          *int64     `json:"broker_id,omitempty"`
	IsRescinded       bool       `json:"is_rescinded"`
	RescindedAt       *time.Time `json:"rescinded_at,omitempty"`
	RescissionReason  string     `json:"rescission_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// BrokerCommission: комиссия брокера по резерву; к ней привязывается payment flow.
type BrokerCommission struct {
	ID            int64      `json:"id"`
	ReservationID int64      `json:"reservation_id"`
	BrokerID      int64      `json:"broker_id"`
	BrokerName    string     `json:"broker_name"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	IsPenalized   bool       `json:"is_penalized"`
	PenaltyReason string     `json:"penalty_reason,omitempty"`
	PenalizedAt   *time.Time `json:"penalized_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
