package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/realtime"
	"inverapp/internal/repositories"
)

const (
	PopupAssigned   = "assigned"
	PopupUnassigned = "unassigned"
	PopupMentioned  = "mentioned"
)

type NotificationService interface {
	TaskObserver
	FlowObserver

	PendingCount(ctx context.Context, userID int64) (int, error)
	Refresh(ctx context.Context, userID int64)
	// CollapseChanged пересчитывает счётчик после сворачивания, если лента изменений выключена.
	CollapseChanged(ctx context.Context, userID int64)
	// Subscribe подключает обработчики к ленте изменений таблиц.
	Subscribe(feed *realtime.ChangeFeed)
}

type notificationService struct {
	assignments repositories.AssignmentRepository
	flows       repositories.FlowRepository
	users       repositories.UserRepository
	out         realtime.Sender
	popups      *realtime.Mediator
	tg          *TelegramService
	email       EmailService
	// fromFeed: popups и пересчёт приходят из ленты изменений, а не напрямую из сервисов
	fromFeed bool
	now      func() time.Time
}

func NewNotificationService(
	assignments repositories.AssignmentRepository,
	flows repositories.FlowRepository,
	users repositories.UserRepository,
	out realtime.Sender,
	popups *realtime.Mediator,
	tg *TelegramService,
	email EmailService,
	fromFeed bool,
) NotificationService {
	return &notificationService{
		assignments: assignments,
		flows:       flows,
		users:       users,
		out:         out,
		popups:      popups,
		tg:          tg,
		email:       email,
		fromFeed:    fromFeed,
		now:         time.Now,
	}
}

// PendingCount всегда считается заново по текущим назначениям.
func (s *notificationService) PendingCount(ctx context.Context, userID int64) (int, error) {
	tasks, err := s.assignments.ListAssignedTasks(ctx, userID)
	if err != nil {
		return 0, err
	}
	return models.PendingTaskCount(tasks, s.now()), nil
}

func (s *notificationService) Refresh(ctx context.Context, userID int64) {
	n, err := s.PendingCount(ctx, userID)
	if err != nil {
		log.Printf("[notify][count][err] user=%d: %v", userID, err)
		return
	}
	if s.out != nil {
		s.out.SendToUser(userID, realtime.Message{Type: realtime.MsgCount, Data: map[string]int{"count": n}})
	}
}

func (s *notificationService) CollapseChanged(ctx context.Context, userID int64) {
	if s.fromFeed {
		return
	}
	s.Refresh(ctx, userID)
}

func (s *notificationService) refreshAll(ctx context.Context, userIDs []int64) {
	for _, id := range models.UniqueIDs(userIDs) {
		s.Refresh(ctx, id)
	}
}

func (s *notificationService) taskName(ctx context.Context, kind models.FlowKind, taskID int64) string {
	tt, err := s.flows.GetTemplateTask(ctx, kind, taskID)
	if err != nil || tt == nil {
		return fmt.Sprintf("#%d", taskID)
	}
	return tt.Name
}

func flowLabel(kind models.FlowKind, flowID int64) string {
	if kind == models.FlowKindPayment {
		return fmt.Sprintf("el flujo de pago #%d", flowID)
	}
	return fmt.Sprintf("el flujo de venta #%d", flowID)
}

func (s *notificationService) popup(userID int64, kind, title, body string, ref map[string]interface{}) {
	if s.popups == nil {
		return
	}
	s.popups.Show(userID, kind, title, body, ref)
}

// ===== TaskObserver =====

func (s *notificationService) TaskStatusChanged(ctx context.Context, inst *models.TaskInstance, assignees []int64) {
	for _, id := range models.UniqueIDs(assignees) {
		s.commentsRefresh(id, inst)
	}
	if !s.fromFeed {
		s.refreshAll(ctx, assignees)
	}
}

func (s *notificationService) AssigneesChanged(ctx context.Context, inst *models.TaskInstance, added, removed []int64, actor Actor) {
	name := s.taskName(ctx, inst.Kind, inst.TaskID)
	if !s.fromFeed {
		ref := map[string]interface{}{"kind": inst.Kind, "flow_id": inst.FlowID, "task_id": inst.TaskID}
		for _, id := range added {
			s.popup(id, PopupAssigned, "Nueva tarea asignada", name, ref)
		}
		for _, id := range removed {
			s.popup(id, PopupUnassigned, "Tarea desasignada", name, ref)
		}
		s.refreshAll(ctx, append(append([]int64{}, added...), removed...))
	}
	for _, id := range added {
		if id == actor.UserID {
			continue
		}
		s.notifyAssigned(ctx, id, name, flowLabel(inst.Kind, inst.FlowID))
	}
}

func (s *notificationService) CommentAdded(ctx context.Context, c *models.Comment) {
	if len(c.Mentions) == 0 {
		return
	}
	name := fmt.Sprintf("#%d", c.TaskInstanceID)
	author := ""
	if u, err := s.users.GetByID(ctx, c.AuthorID); err == nil && u != nil {
		author = u.FullName()
	}
	for _, id := range c.Mentions {
		if id == c.AuthorID {
			continue
		}
		s.popup(id, PopupMentioned, "Te mencionaron", c.Body, map[string]interface{}{"kind": c.Kind, "task_instance_id": c.TaskInstanceID})
		if s.out != nil {
			s.out.SendToUser(id, realtime.Message{Type: realtime.MsgCommentsRefresh, Data: map[string]interface{}{
				"kind": c.Kind, "task_instance_id": c.TaskInstanceID,
			}})
		}
		s.notifyMention(ctx, id, name, author, c.Body)
	}
}

func (s *notificationService) commentsRefresh(userID int64, inst *models.TaskInstance) {
	if s.out == nil {
		return
	}
	s.out.SendToUser(userID, realtime.Message{Type: realtime.MsgCommentsRefresh, Data: map[string]interface{}{
		"kind": inst.Kind, "task_instance_id": inst.ID,
	}})
}

// ===== FlowObserver =====

func (s *notificationService) FlowStatusChanged(ctx context.Context, flow *models.Flow) {
	if s.fromFeed {
		return
	}
	s.recountFlow(ctx, flow.Kind, flow.ID)
}

func (s *notificationService) recountFlow(ctx context.Context, kind models.FlowKind, flowID int64) {
	as, err := s.assignments.ListByFlow(ctx, kind, flowID)
	if err != nil {
		log.Printf("[notify][flow][err] kind=%s flow=%d: %v", kind, flowID, err)
		return
	}
	s.refreshAll(ctx, models.AssigneeUserIDs(as))
}

// ===== side channels =====

func (s *notificationService) notifyAssigned(ctx context.Context, userID int64, taskName, label string) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil {
		log.Printf("[notify][assign][err] user=%d not loaded: %v", userID, err)
		return
	}
	if s.tg != nil && u.NotifyTelegram && u.TelegramChatID != 0 {
		text := fmt.Sprintf("📌 Nueva tarea: <b>%s</b>\n%s", html.EscapeString(taskName), html.EscapeString(label))
		if err := s.tg.SendMessage(u.TelegramChatID, text); err != nil {
			log.Printf("[notify][tg][err] user=%d: %v", userID, err)
		}
	}
	if s.email != nil && u.Email != "" {
		if err := s.email.SendTaskAssigned(u.Email, u.FullName(), taskName, label); err != nil {
			log.Printf("[notify][email][err] user=%d: %v", userID, err)
		}
	}
}

func (s *notificationService) notifyMention(ctx context.Context, userID int64, taskName, author, body string) {
	if s.email == nil {
		return
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u == nil || u.Email == "" {
		return
	}
	if err := s.email.SendMention(u.Email, u.FullName(), taskName, author, body); err != nil {
		log.Printf("[notify][email][err] mention user=%d: %v", userID, err)
	}
}

// ===== change feed =====

func (s *notificationService) Subscribe(feed *realtime.ChangeFeed) {
	feed.Subscribe("task_assignments", realtime.EventTypes(models.EventInsert, models.EventDelete), s.onAssignment)
	for _, table := range []string{"reservation_flow_tasks", "commission_flow_tasks"} {
		feed.Subscribe(table, nil, s.onTaskInstance)
	}
	for _, table := range []string{"reservation_flows", "commission_flows"} {
		feed.Subscribe(table, realtime.EventTypes(models.EventUpdate), s.onFlow)
	}
	feed.Subscribe("collapsed_tasks", nil, s.onCollapse)
}

func (s *notificationService) onAssignment(ctx context.Context, ev models.ChangeEvent) {
	row := ev.Row()
	userID, ok := models.Int64(row, "user_id")
	if !ok {
		return
	}
	kind := models.FlowKind(fmt.Sprint(row["flow_kind"]))
	instanceID, _ := models.Int64(row, "task_instance_id")
	ref := map[string]interface{}{"kind": kind, "task_instance_id": instanceID}
	switch ev.EventType {
	case models.EventInsert:
		s.popup(userID, PopupAssigned, "Nueva tarea asignada", "", ref)
	case models.EventDelete:
		s.popup(userID, PopupUnassigned, "Tarea desasignada", "", ref)
	}
	s.Refresh(ctx, userID)
}

func (s *notificationService) onTaskInstance(ctx context.Context, ev models.ChangeEvent) {
	kind, ok := repositories.KindForTable(ev.Table)
	if !ok {
		return
	}
	instanceID, ok := models.Int64(ev.Row(), "id")
	if !ok {
		return
	}
	as, err := s.assignments.ListByInstance(ctx, kind, instanceID)
	if err != nil {
		log.Printf("[notify][task][err] kind=%s instance=%d: %v", kind, instanceID, err)
		return
	}
	s.refreshAll(ctx, models.AssigneeUserIDs(as))
}

func (s *notificationService) onFlow(ctx context.Context, ev models.ChangeEvent) {
	kind, ok := repositories.KindForTable(ev.Table)
	if !ok {
		return
	}
	flowID, ok := models.Int64(ev.Row(), "id")
	if !ok {
		return
	}
	s.recountFlow(ctx, kind, flowID)
}

func (s *notificationService) onCollapse(ctx context.Context, ev models.ChangeEvent) {
	if userID, ok := models.Int64(ev.Row(), "user_id"); ok {
		s.Refresh(ctx, userID)
	}
}
