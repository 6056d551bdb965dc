package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/repositories"
)

// TaskObserver получает уведомления после успешной записи.
// Реализуется NotificationService; nil допустим.
type TaskObserver interface {
	TaskStatusChanged(ctx context.Context, inst *models.TaskInstance, assignees []int64)
	AssigneesChanged(ctx context.Context, inst *models.TaskInstance, added, removed []int64, actor Actor)
	CommentAdded(ctx context.Context, c *models.Comment)
}

// StatusResult: подтверждённое состояние задачи и пересчитанный статус её этапа.
// При ошибке Task содержит последнее подтверждённое состояние (или nil, если экземпляра не было).
type StatusResult struct {
	Task           *models.TaskInstance `json:"task"`
	StageID        int64                `json:"stage_id"`
	StageCompleted bool                 `json:"stage_completed"`
}

type AssigneesResult struct {
	Task      *models.TaskInstance `json:"task"`
	Assignees []models.Assignment  `json:"assignees"`
	Added     []int64              `json:"added"`
	Removed   []int64              `json:"removed"`
}

type WorkflowService interface {
	GetFlowDetail(ctx context.Context, kind models.FlowKind, flowID int64) (*models.FlowDetail, error)
	GetTaskInstance(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error)

	SetTaskStatus(ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64, to models.TaskStatus, completedAt *time.Time) (*StatusResult, error)
	ReconcileAssignees(ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64, desired []int64) (*AssigneesResult, error)

	AddComment(ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64, body string, mentions []int64) (*models.Comment, error)
	DeleteComment(ctx context.Context, actor Actor, commentID int64) error
	ListComments(ctx context.Context, kind models.FlowKind, flowID, taskID int64) ([]models.Comment, error)
}

type workflowService struct {
	flows       repositories.FlowRepository
	tasks       repositories.TaskRepository
	assignments repositories.AssignmentRepository
	comments    repositories.CommentRepository
	observer    TaskObserver
	now         func() time.Time
}

func NewWorkflowService(
	flows repositories.FlowRepository,
	tasks repositories.TaskRepository,
	assignments repositories.AssignmentRepository,
	comments repositories.CommentRepository,
	observer TaskObserver,
) WorkflowService {
	return &workflowService{
		flows:       flows,
		tasks:       tasks,
		assignments: assignments,
		comments:    comments,
		observer:    observer,
		now:         time.Now,
	}
}

// taskRef: проверенная пара (flow, шаблонная задача).
type taskRef struct {
	flow  *models.Flow
	task  *models.TemplateTask
	stage *models.Stage
}

func (s *workflowService) resolve(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*taskRef, error) {
	flow, err := s.flows.GetByID(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %d: %w", flowID, ErrNotFound)
	}
	tt, err := s.flows.GetTemplateTask(ctx, kind, taskID)
	if err != nil {
		return nil, err
	}
	if tt == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrNotFound)
	}
	stage, err := s.flows.GetStage(ctx, kind, tt.StageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || stage.TemplateID != flow.TemplateID {
		return nil, fmt.Errorf("%w: task %d is not part of flow %d", ErrValidation, taskID, flowID)
	}
	return &taskRef{flow: flow, task: tt, stage: stage}, nil
}

// ensureInstance находит экземпляр задачи или создаёт его в статусе pending.
func (s *workflowService) ensureInstance(ctx context.Context, kind models.FlowKind, ref *taskRef) (*models.TaskInstance, error) {
	inst, err := s.tasks.Find(ctx, kind, ref.flow.ID, ref.task.ID)
	if err != nil || inst != nil {
		return inst, err
	}
	inst = &models.TaskInstance{Kind: kind, FlowID: ref.flow.ID, TaskID: ref.task.ID, Status: models.StatusPending}
	if err := s.tasks.Create(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *workflowService) GetFlowDetail(ctx context.Context, kind models.FlowKind, flowID int64) (*models.FlowDetail, error) {
	flow, err := s.flows.GetByID(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	if flow == nil {
		return nil, fmt.Errorf("flow %d: %w", flowID, ErrNotFound)
	}
	stages, err := s.flows.ListStages(ctx, kind, flow.TemplateID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.flows.ListTemplateTasks(ctx, kind, flow.TemplateID)
	if err != nil {
		return nil, err
	}
	instances, err := s.tasks.ListByFlow(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.assignments.ListByFlow(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	counts, err := s.comments.CountByFlow(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}
	detail := models.BuildFlowDetail(*flow, stages, tasks, instances, assignments, counts)
	return &detail, nil
}

func (s *workflowService) GetTaskInstance(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error) {
	ref, err := s.resolve(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}
	return s.tasks.Find(ctx, kind, ref.flow.ID, ref.task.ID)
}

func (s *workflowService) SetTaskStatus(
	ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64,
	to models.TaskStatus, completedAt *time.Time,
) (*StatusResult, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	// дату завершения задаёт только администратор, остальным ставится now
	if completedAt != nil && !actor.IsAdmin() {
		completedAt = nil
	}
	ref, err := s.resolve(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}

	existing, err := s.tasks.Find(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{Task: existing.Clone(), StageID: ref.stage.ID}
	if existing != nil && existing.Status == models.StatusCompleted && !actor.IsAdmin() {
		return res, fmt.Errorf("%w: completed tasks can only be changed by an administrator", ErrForbidden)
	}

	var assignees []int64
	if existing != nil {
		current, err := s.assignments.ListByInstance(ctx, kind, existing.ID)
		if err != nil {
			return res, err
		}
		assignees = models.AssigneeUserIDs(current)
	}

	now := s.now()
	next := existing.Clone()
	if next == nil {
		next = &models.TaskInstance{Kind: kind, FlowID: flowID, TaskID: taskID}
	}
	next.ApplyStatus(to, completedAt, now, assignees)

	if existing == nil {
		err = s.tasks.Create(ctx, next)
	} else {
		err = s.tasks.UpdateState(ctx, next)
	}
	if err != nil {
		log.Printf("[workflow][status][err] kind=%s flow=%d task=%d to=%s: %v", kind, flowID, taskID, to, err)
		return res, err
	}
	res.Task = next

	completed, err := s.stageCompleted(ctx, kind, ref)
	if err != nil {
		return res, err
	}
	res.StageCompleted = completed

	if s.observer != nil {
		s.observer.TaskStatusChanged(ctx, next, assignees)
	}
	return res, nil
}

// stageCompleted пересчитывает этап задачи по свежему чтению.
func (s *workflowService) stageCompleted(ctx context.Context, kind models.FlowKind, ref *taskRef) (bool, error) {
	tasks, err := s.flows.ListTemplateTasks(ctx, kind, ref.flow.TemplateID)
	if err != nil {
		return false, err
	}
	instances, err := s.tasks.ListByFlow(ctx, kind, ref.flow.ID)
	if err != nil {
		return false, err
	}
	byTask := make(map[int64]*models.TaskInstance, len(instances))
	for i := range instances {
		byTask[instances[i].TaskID] = &instances[i]
	}
	var views []models.TaskView
	for _, t := range tasks {
		if t.StageID != ref.stage.ID {
			continue
		}
		views = append(views, models.TaskView{Task: t, Instance: byTask[t.ID]})
	}
	return models.StageCompleted(views), nil
}

func (s *workflowService) ReconcileAssignees(
	ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64, desired []int64,
) (*AssigneesResult, error) {
	desired = models.UniqueIDs(desired)
	ref, err := s.resolve(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}

	existing, err := s.tasks.Find(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}
	if existing == nil && len(desired) == 0 {
		// нечего сохранять: экземпляр не создаём
		return &AssigneesResult{Assignees: []models.Assignment{}}, nil
	}
	if existing != nil && existing.Status == models.StatusCompleted && !actor.IsAdmin() {
		return &AssigneesResult{Task: existing}, fmt.Errorf("%w: completed tasks can only be changed by an administrator", ErrForbidden)
	}

	inst := existing
	if inst == nil {
		if inst, err = s.ensureInstance(ctx, kind, ref); err != nil {
			return nil, err
		}
	}
	res := &AssigneesResult{Task: inst.Clone()}

	current, err := s.assignments.ListByInstance(ctx, kind, inst.ID)
	if err != nil {
		return res, err
	}
	toRemove, toAdd := models.DiffAssignees(models.AssigneeUserIDs(current), desired)

	var projected *int64
	if inst.Status != models.StatusCompleted {
		projected = models.ProjectAssignee(desired)
	}
	if len(toRemove) == 0 && len(toAdd) == 0 && models.SameAssignee(projected, inst.AssigneeID) {
		res.Assignees = current
		return res, nil
	}

	change := models.AssignmentChange{
		Kind:            kind,
		TaskInstanceID:  inst.ID,
		Remove:          toRemove,
		Add:             toAdd,
		ActorID:         actor.UserID,
		StatusAtRemoval: inst.Status,
		AssigneeID:      projected,
		At:              s.now(),
	}
	if err := s.assignments.Apply(ctx, change); err != nil {
		log.Printf("[workflow][assign][err] kind=%s flow=%d task=%d: %v", kind, flowID, taskID, err)
		res.Assignees = current
		return res, err
	}

	next := inst.Clone()
	next.AssigneeID = projected
	res.Task = next
	res.Added = toAdd
	res.Removed = toRemove
	if res.Assignees, err = s.assignments.ListByInstance(ctx, kind, inst.ID); err != nil {
		return res, err
	}

	if s.observer != nil {
		s.observer.AssigneesChanged(ctx, next, toAdd, toRemove, actor)
	}
	return res, nil
}

func (s *workflowService) AddComment(
	ctx context.Context, actor Actor, kind models.FlowKind, flowID, taskID int64, body string, mentions []int64,
) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment body is required", ErrValidation)
	}
	ref, err := s.resolve(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}
	inst, err := s.ensureInstance(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{
		Kind:           kind,
		TaskInstanceID: inst.ID,
		AuthorID:       actor.UserID,
		Body:           body,
		Mentions:       models.UniqueIDs(mentions),
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.CommentAdded(ctx, c)
	}
	return c, nil
}

func (s *workflowService) DeleteComment(ctx context.Context, actor Actor, commentID int64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only administrators can delete comments", ErrForbidden)
	}
	return s.comments.Delete(ctx, commentID)
}

func (s *workflowService) ListComments(ctx context.Context, kind models.FlowKind, flowID, taskID int64) ([]models.Comment, error) {
	inst, err := s.GetTaskInstance(ctx, kind, flowID, taskID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return []models.Comment{}, nil
	}
	list, err := s.comments.ListByInstance(ctx, kind, inst.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Comment{}
	}
	return list, nil
}
