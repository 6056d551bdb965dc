package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

type CommissionService interface {
	Get(ctx context.Context, id int64) (*models.BrokerCommission, error)
	Penalize(ctx context.Context, actor Actor, id int64, confirmation, reason string) (*models.BrokerCommission, error)
}

type commissionService struct {
	commissions repositories.CommissionRepository
	now         func() time.Time
}

func NewCommissionService(commissions repositories.CommissionRepository) CommissionService {
	return &commissionService{commissions: commissions, now: time.Now}
}

func (s *commissionService) Get(ctx context.Context, id int64) (*models.BrokerCommission, error) {
	bc, err := s.commissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, fmt.Errorf("commission %d: %w", id, ErrNotFound)
	}
	return bc, nil
}

func (s *commissionService) Penalize(ctx context.Context, actor Actor, id int64, confirmation, reason string) (*models.BrokerCommission, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can penalize a commission", ErrForbidden)
	}
	if strings.TrimSpace(confirmation) != PenalizeConfirmation {
		return nil, fmt.Errorf("%w: type %s to confirm", ErrValidation, PenalizeConfirmation)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrValidation)
	}
	bc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bc.IsPenalized {
		return nil, fmt.Errorf("%w: commission already penalized", ErrConflict)
	}
	at := s.now()
	if err := s.commissions.MarkPenalized(ctx, id, reason, at); err != nil {
		return nil, err
	}
	bc.IsPenalized = true
	bc.PenaltyReason = reason
	bc.PenalizedAt = &at
	return bc, nil
}
