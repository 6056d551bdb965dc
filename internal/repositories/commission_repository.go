package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inverapp/internal/models"
)

type CommissionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.BrokerCommission, error)
	MarkPenalized(ctx context.Context, id int64, reason string, at time.Time) error
}

type commissionRepository struct{ db *sql.DB }

func NewCommissionRepository(db *sql.DB) CommissionRepository {
	return &commissionRepository{db: db}
}

func (r *commissionRepository) GetByID(ctx context.Context, id int64) (*models.BrokerCommission, error) {
	const q = `
		SELECT c.id, c.reservation_id, c.broker_id, COALESCE(b.name,''), c.amount::text, c.currency,
		       c.is_penalized, COALESCE(c.penalty_reason,''), c.penalized_at, c.created_at
		FROM broker_commissions c
		LEFT JOIN brokers b ON b.id = c.broker_id
		WHERE c.id=$1`
	var bc models.BrokerCommission
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&bc.ID, &bc.ReservationID, &bc.BrokerID, &bc.BrokerName, &bc.Amount, &bc.Currency,
		&bc.IsPenalized, &bc.PenaltyReason, &bc.PenalizedAt, &bc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commission: %w", err)
	}
	return &bc, nil
}

func (r *commissionRepository) MarkPenalized(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE broker_commissions SET is_penalized=TRUE, penalty_reason=$1, penalized_at=$2 WHERE id=$3`,
		reason, at, id)
	if err != nil {
		return fmt.Errorf("penalize commission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("commission %d: %w", id, ErrNotFound)
	}
	return nil
}
