package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

const (
	RescindConfirmation  = "RESCINDIR"
	PenalizeConfirmation = "PENALIZAR"
)

type CreateReservationInput struct {
	ReservationNumber string `json:"reservation_number" binding:"required"`
	ProjectName       string `json:"project_name" binding:"required"`
	ApartmentNumber   string `json:"apartment_number"`
	ClientName        string `json:"client_name" binding:"required"`
	SellerID          *int64 `json:"seller_id"`
	BrokerID          *int64 `json:"broker_id"`
	TemplateID        int64  `json:"flow_template_id" binding:"required"`
}

type ReservationService interface {
	Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, *models.Flow, error)
	Get(ctx context.Context, id int64) (*models.Reservation, *models.Flow, error)
	Rescind(ctx context.Context, id int64, confirmation, reason string) (*models.Reservation, error)
}

type reservationService struct {
	reservations repositories.ReservationRepository
	flowRepo     repositories.FlowRepository
	flows        FlowService
	now          func() time.Time
}

func NewReservationService(reservations repositories.ReservationRepository, flowRepo repositories.FlowRepository, flows FlowService) ReservationService {
	return &reservationService{reservations: reservations, flowRepo: flowRepo, flows: flows, now: time.Now}
}

// Create сохраняет резерв вместе с sale flow в статусе pending: либо оба, либо ничего.
func (s *reservationService) Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, *models.Flow, error) {
	if strings.TrimSpace(in.ReservationNumber) == "" || strings.TrimSpace(in.ClientName) == "" {
		return nil, nil, fmt.Errorf("%w: reservation number and client are required", ErrValidation)
	}
	r := &models.Reservation{
		ReservationNumber: strings.TrimSpace(in.ReservationNumber),
		ProjectName:       strings.TrimSpace(in.ProjectName),
		ApartmentNumber:   strings.TrimSpace(in.ApartmentNumber),
		ClientName:        strings.TrimSpace(in.ClientName),
		SellerID:          in.SellerID,
		BrokerID:          in.BrokerID,
	}
	flow, err := s.flows.PrepareSaleFlow(ctx, in.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.reservations.Create(ctx, r, flow); err != nil {
		log.Printf("[reservation][create][err] number=%s template=%d: %v", r.ReservationNumber, in.TemplateID, err)
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, nil, fmt.Errorf("%w: reservation %s already exists", ErrConflict, r.ReservationNumber)
		}
		return nil, nil, err
	}
	log.Printf("[reservation][create] id=%d flow=%d template=%d", r.ID, flow.ID, in.TemplateID)
	return r, flow, nil
}

func (s *reservationService) Get(ctx context.Context, id int64) (*models.Reservation, *models.Flow, error) {
	r, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if r == nil {
		return nil, nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	flow, err := s.flowRepo.FindSaleFlow(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return r, flow, nil
}

// Rescind требует ввода слова-подтверждения и причины. Flow не трогаем: он остаётся как история.
func (s *reservationService) Rescind(ctx context.Context, id int64, confirmation, reason string) (*models.Reservation, error) {
	if strings.TrimSpace(confirmation) != RescindConfirmation {
		return nil, fmt.Errorf("%w: type %s to confirm", ErrValidation, RescindConfirmation)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrValidation)
	}
	r, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if r.IsRescinded {
		return nil, fmt.Errorf("%w: reservation already rescinded", ErrConflict)
	}
	at := s.now()
	if err := s.reservations.MarkRescinded(ctx, id, reason, at); err != nil {
		return nil, err
	}
	r.IsRescinded = true
	r.RescindedAt = &at
	r.RescissionReason = reason
	return r, nil
}
