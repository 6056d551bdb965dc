package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

type CollapseService interface {
	// Collapse скрывает назначение из счётчика пользователя до истечения ttl.
	Collapse(ctx context.Context, actor Actor, assignmentID int64, ttl time.Duration) (*models.CollapsedTask, error)
	Sweep(ctx context.Context) (int64, error)
	StartSweeper(schedule string) (*cron.Cron, error)
}

type collapseService struct {
	collapsed   repositories.CollapsedTaskRepository
	assignments repositories.AssignmentRepository
	notify      NotificationService
	defaultTTL  time.Duration
	now         func() time.Time
}

func NewCollapseService(
	collapsed repositories.CollapsedTaskRepository,
	assignments repositories.AssignmentRepository,
	notify NotificationService,
	defaultTTL time.Duration,
) CollapseService {
	return &collapseService{
		collapsed:   collapsed,
		assignments: assignments,
		notify:      notify,
		defaultTTL:  defaultTTL,
		now:         time.Now,
	}
}

func (s *collapseService) Collapse(ctx context.Context, actor Actor, assignmentID int64, ttl time.Duration) (*models.CollapsedTask, error) {
	if ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrValidation)
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
	}
	if a.UserID != actor.UserID {
		return nil, fmt.Errorf("%w: only the assignee can collapse a task", ErrForbidden)
	}
	c := &models.CollapsedTask{UserID: actor.UserID, AssignmentID: assignmentID, ExpiresAt: s.now().Add(ttl)}
	if err := s.collapsed.Upsert(ctx, c); err != nil {
		return nil, err
	}
	if s.notify != nil {
		s.notify.CollapseChanged(ctx, actor.UserID)
	}
	return c, nil
}

func (s *collapseService) Sweep(ctx context.Context) (int64, error) {
	return s.collapsed.DeleteExpired(ctx, s.now())
}

// StartSweeper запускает периодическую очистку истёкших отметок.
func (s *collapseService) StartSweeper(schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.Sweep(ctx)
		if err != nil {
			log.Printf("[collapse][sweep][err] %v", err)
			return
		}
		if n > 0 {
			log.Printf("[collapse][sweep] removed=%d", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("collapse sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
