package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

// FlowObserver уведомляется о смене статуса flow (пересчёт счётчиков назначенных пользователей).
type FlowObserver interface {
	FlowStatusChanged(ctx context.Context, flow *models.Flow)
}

type FlowService interface {
	GetFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error)
	CreateSaleFlow(ctx context.Context, reservationID, templateID int64) (*models.Flow, error)
	// PrepareSaleFlow проверяет шаблон и возвращает несохранённый sale flow на первом этапе.
	PrepareSaleFlow(ctx context.Context, templateID int64) (*models.Flow, error)
	EnsurePaymentFlow(ctx context.Context, commissionID, templateID int64) (*models.Flow, error)
	StartFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error)
	CompleteFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error)
	SetCurrentStage(ctx context.Context, kind models.FlowKind, flowID, stageID int64) (*models.Flow, error)
}

type flowService struct {
	flows       repositories.FlowRepository
	commissions repositories.CommissionRepository
	observer    FlowObserver
	now         func() time.Time
}

func NewFlowService(flows repositories.FlowRepository, commissions repositories.CommissionRepository, observer FlowObserver) FlowService {
	return &flowService{flows: flows, commissions: commissions, observer: observer, now: time.Now}
}

func (s *flowService) GetFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error) {
	flow, err := s.flows.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %d: %w", id, ErrNotFound)
	}
	return flow, nil
}

// firstStage: этап с минимальным порядком; nil для пустого шаблона.
func (s *flowService) firstStage(ctx context.Context, kind models.FlowKind, templateID int64) (*int64, error) {
	stages, err := s.flows.ListStages(ctx, kind, templateID)
	if err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, nil
	}
	first := stages[0]
	for _, st := range stages[1:] {
		if st.Order < first.Order {
			first = st
		}
	}
	return &first.ID, nil
}

func (s *flowService) create(ctx context.Context, kind models.FlowKind, ownerID, templateID int64) (*models.Flow, error) {
	stageID, err := s.firstStage(ctx, kind, templateID)
	if err != nil {
		return nil, err
	}
	flow := &models.Flow{
		Kind:           kind,
		OwnerID:        ownerID,
		TemplateID:     templateID,
		CurrentStageID: stageID,
		Status:         models.FlowPending,
	}
	if err := s.flows.Create(ctx, flow); err != nil {
		return nil, err
	}
	log.Printf("[flow][create] kind=%s id=%d owner=%d template=%d", kind, flow.ID, ownerID, templateID)
	return flow, nil
}

func (s *flowService) PrepareSaleFlow(ctx context.Context, templateID int64) (*models.Flow, error) {
	stageID, err := s.firstStage(ctx, models.FlowKindSale, templateID)
	if err != nil {
		return nil, err
	}
	if stageID == nil {
		return nil, fmt.Errorf("%w: flow template %d has no stages", ErrValidation, templateID)
	}
	return &models.Flow{
		Kind:           models.FlowKindSale,
		TemplateID:     templateID,
		CurrentStageID: stageID,
		Status:         models.FlowPending,
	}, nil
}

func (s *flowService) CreateSaleFlow(ctx context.Context, reservationID, templateID int64) (*models.Flow, error) {
	return s.create(ctx, models.FlowKindSale, reservationID, templateID)
}

// EnsurePaymentFlow возвращает активный flow выплаты комиссии, создавая его при первом обращении.
func (s *flowService) EnsurePaymentFlow(ctx context.Context, commissionID, templateID int64) (*models.Flow, error) {
	bc, err := s.commissions.GetByID(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, fmt.Errorf("commission %d: %w", commissionID, ErrNotFound)
	}
	existing, err := s.flows.FindActivePaymentFlow(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	flow, err := s.create(ctx, models.FlowKindPayment, commissionID, templateID)
	if !errors.Is(err, repositories.ErrDuplicate) {
		return flow, err
	}
	// параллельный запрос успел создать flow первым
	winner, err := s.flows.FindActivePaymentFlow(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("%w: payment flow for commission %d", ErrConflict, commissionID)
	}
	log.Printf("[flow][ensure] commission=%d reused id=%d after concurrent create", commissionID, winner.ID)
	return winner, nil
}

func (s *flowService) transition(ctx context.Context, kind models.FlowKind, id int64, to models.FlowStatus) (*models.Flow, error) {
	flow, err := s.GetFlow(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(string(flow.Status), string(to), FlowTransitions) {
		return nil, fmt.Errorf("%w: flow cannot move from %s to %s", ErrConflict, flow.Status, to)
	}
	now := s.now()
	flow.Status = to
	switch to {
	case models.FlowInProgress:
		flow.StartedAt = &now
	case models.FlowCompleted:
		flow.CompletedAt = &now
	}
	if err := s.flows.UpdateStatus(ctx, flow); err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.FlowStatusChanged(ctx, flow)
	}
	return flow, nil
}

func (s *flowService) StartFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error) {
	return s.transition(ctx, kind, id, models.FlowInProgress)
}

func (s *flowService) CompleteFlow(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error) {
	return s.transition(ctx, kind, id, models.FlowCompleted)
}

// SetCurrentStage меняет текущий этап только явно; этап должен принадлежать шаблону flow.
func (s *flowService) SetCurrentStage(ctx context.Context, kind models.FlowKind, flowID, stageID int64) (*models.Flow, error) {
	flow, err := s.GetFlow(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	stage, err := s.flows.GetStage(ctx, kind, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.TemplateID != flow.TemplateID {
		return nil, fmt.Errorf("%w: stage %d does not belong to flow template %d", ErrValidation, stageID, flow.TemplateID)
	}
	if err := s.flows.SetCurrentStage(ctx, kind, flowID, stageID); err != nil {
		return nil, err
	}
	flow.CurrentStageID = &stage.ID
	return flow, nil
}
