package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/realtime"
	"inverapp/internal/repositories"
)

// memStore: in-memory замена PostgreSQL для тестов сервисов.
type memStore struct {
	mu sync.Mutex

	flows       map[models.FlowKind]map[int64]*models.Flow
	stages      map[models.FlowKind][]models.Stage
	tasks       map[models.FlowKind][]models.TemplateTask
	instances   map[models.FlowKind]map[int64]*models.TaskInstance
	assignments []models.Assignment
	history     []models.AssignmentHistory
	comments    []models.Comment
	collapsed   []models.CollapsedTask
	users       map[int64]*models.User
	commissions map[int64]*models.BrokerCommission
	reserv      map[int64]*models.Reservation

	nextID int64
	writes int

	failApply      error
	failUpdate     error
	failFlowInsert error
}

// Шаблоны:
//
//	sale template 1: stage 1 {11, 12}, stage 2 {21}; template 2: stage 3 {31}
//	payment template 5: stage 50 {51, 52}
//
// sale flow 100 (in_progress, template 1), payment flow 200 (in_progress, template 5, commission 7).
func newMemStore() *memStore {
	s := &memStore{
		flows: map[models.FlowKind]map[int64]*models.Flow{
			models.FlowKindSale:    {},
			models.FlowKindPayment: {},
		},
		stages: map[models.FlowKind][]models.Stage{
			models.FlowKindSale: {
				{ID: 1, TemplateID: 1, Name: "Reserva", Order: 1},
				{ID: 2, TemplateID: 1, Name: "Promesa", Order: 2},
				{ID: 3, TemplateID: 2, Name: "Otro", Order: 1},
			},
			models.FlowKindPayment: {
				{ID: 50, TemplateID: 5, Name: "Pago", Order: 1},
			},
		},
		tasks: map[models.FlowKind][]models.TemplateTask{
			models.FlowKindSale: {
				{ID: 11, StageID: 1, Name: "Pago reserva", Order: 1},
				{ID: 12, StageID: 1, Name: "Firma promesa", Order: 2},
				{ID: 21, StageID: 2, Name: "Escritura", Order: 1},
				{ID: 31, StageID: 3, Name: "Ajena", Order: 1},
			},
			models.FlowKindPayment: {
				{ID: 51, StageID: 50, Name: "Factura broker", Order: 1},
				{ID: 52, StageID: 50, Name: "Transferencia", Order: 2},
			},
		},
		instances: map[models.FlowKind]map[int64]*models.TaskInstance{
			models.FlowKindSale:    {},
			models.FlowKindPayment: {},
		},
		users: map[int64]*models.User{
			1: {ID: 1, Email: "admin@inver.cl", FirstName: "Admin", UserType: "Administrador"},
			2: {ID: 2, Email: "ana@inver.cl", FirstName: "Ana", LastName: "Muñoz", UserType: "Vendedor", TelegramChatID: 555, NotifyTelegram: true},
			3: {ID: 3, Email: "luis@inver.cl", FirstName: "Luis", UserType: "Operaciones"},
		},
		commissions: map[int64]*models.BrokerCommission{
			7: {ID: 7, ReservationID: 9, BrokerID: 4, BrokerName: "Corredora Sur", Amount: "1000.00", Currency: "CLP"},
		},
		reserv: map[int64]*models.Reservation{},
		nextID: 1000,
	}
	s.flows[models.FlowKindSale][100] = &models.Flow{ID: 100, Kind: models.FlowKindSale, OwnerID: 9, TemplateID: 1, Status: models.FlowInProgress}
	s.flows[models.FlowKindPayment][200] = &models.Flow{ID: 200, Kind: models.FlowKindPayment, OwnerID: 7, TemplateID: 5, Status: models.FlowInProgress}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memStore) instance(kind models.FlowKind, flowID, taskID int64) *models.TaskInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances[kind] {
		if inst.FlowID == flowID && inst.TaskID == taskID {
			return inst.Clone()
		}
	}
	return nil
}

// seedInstance кладёт экземпляр задачи с назначениями напрямую (без счётчика записей).
func (s *memStore) seedInstance(kind models.FlowKind, flowID, taskID int64, status models.TaskStatus, users ...int64) *models.TaskInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := &models.TaskInstance{ID: s.id(), Kind: kind, FlowID: flowID, TaskID: taskID, Status: status}
	if status == models.StatusCompleted {
		at := time.Now().Add(-time.Hour)
		inst.CompletedAt = &at
	} else {
		inst.AssigneeID = models.ProjectAssignee(users)
	}
	s.instances[kind][inst.ID] = inst
	for _, u := range users {
		s.assignments = append(s.assignments, models.Assignment{ID: s.id(), Kind: kind, TaskInstanceID: inst.ID, UserID: u, AssignedAt: time.Now()})
	}
	return inst.Clone()
}

func (s *memStore) assigneesOf(kind models.FlowKind, instanceID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, a := range s.assignments {
		if a.Kind == kind && a.TaskInstanceID == instanceID {
			out = append(out, a.UserID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ===== FlowRepository =====

type memFlows struct{ *memStore }

func (r memFlows) GetByID(_ context.Context, kind models.FlowKind, id int64) (*models.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[kind][id]
	if !ok {
		return nil, nil
	}
	c := *f
	return &c, nil
}

func (r memFlows) Create(_ context.Context, flow *models.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if flow.Kind == models.FlowKindPayment && !flow.IsSecondPayment {
		for _, f := range r.flows[models.FlowKindPayment] {
			if f.OwnerID == flow.OwnerID && !f.IsSecondPayment {
				return fmt.Errorf("create flow: %w", repositories.ErrDuplicate)
			}
		}
	}
	r.writes++
	flow.ID = r.id()
	flow.CreatedAt = time.Now()
	c := *flow
	r.flows[flow.Kind][flow.ID] = &c
	return nil
}

func (r memFlows) UpdateStatus(_ context.Context, flow *models.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	c := *flow
	r.flows[flow.Kind][flow.ID] = &c
	return nil
}

func (r memFlows) SetCurrentStage(_ context.Context, kind models.FlowKind, flowID, stageID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	r.flows[kind][flowID].CurrentStageID = &stageID
	return nil
}

func (r memFlows) FindActivePaymentFlow(_ context.Context, commissionID int64) (*models.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flows[models.FlowKindPayment] {
		if f.OwnerID == commissionID && !f.IsSecondPayment {
			c := *f
			return &c, nil
		}
	}
	return nil, nil
}

func (r memFlows) FindSaleFlow(_ context.Context, reservationID int64) (*models.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flows[models.FlowKindSale] {
		if f.OwnerID == reservationID {
			c := *f
			return &c, nil
		}
	}
	return nil, nil
}

func (r memFlows) ListStages(_ context.Context, kind models.FlowKind, templateID int64) ([]models.Stage, error) {
	var out []models.Stage
	for _, st := range r.stages[kind] {
		if st.TemplateID == templateID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r memFlows) GetStage(_ context.Context, kind models.FlowKind, stageID int64) (*models.Stage, error) {
	for _, st := range r.stages[kind] {
		if st.ID == stageID {
			st := st
			return &st, nil
		}
	}
	return nil, nil
}

func (r memFlows) ListTemplateTasks(ctx context.Context, kind models.FlowKind, templateID int64) ([]models.TemplateTask, error) {
	var out []models.TemplateTask
	for _, t := range r.tasks[kind] {
		st, _ := r.GetStage(ctx, kind, t.StageID)
		if st != nil && st.TemplateID == templateID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memFlows) GetTemplateTask(_ context.Context, kind models.FlowKind, taskID int64) (*models.TemplateTask, error) {
	for _, t := range r.tasks[kind] {
		if t.ID == taskID {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

// ===== TaskRepository =====

type memTasks struct{ *memStore }

func (r memTasks) Find(_ context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error) {
	return r.instance(kind, flowID, taskID), nil
}

func (r memTasks) FindByID(_ context.Context, kind models.FlowKind, id int64) (*models.TaskInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[kind][id].Clone(), nil
}

func (r memTasks) Create(_ context.Context, inst *models.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	inst.ID = r.id()
	inst.CreatedAt = time.Now()
	inst.UpdatedAt = inst.CreatedAt
	r.instances[inst.Kind][inst.ID] = inst.Clone()
	return nil
}

func (r memTasks) UpdateState(_ context.Context, inst *models.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate != nil {
		return r.failUpdate
	}
	if _, ok := r.instances[inst.Kind][inst.ID]; !ok {
		return fmt.Errorf("update task instance %d: %w", inst.ID, repositories.ErrNotFound)
	}
	r.writes++
	inst.UpdatedAt = time.Now()
	r.instances[inst.Kind][inst.ID] = inst.Clone()
	return nil
}

func (r memTasks) ListByFlow(_ context.Context, kind models.FlowKind, flowID int64) ([]models.TaskInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TaskInstance
	for _, inst := range r.instances[kind] {
		if inst.FlowID == flowID {
			out = append(out, *inst.Clone())
		}
	}
	return out, nil
}

// ===== AssignmentRepository =====

type memAssignments struct{ *memStore }

func (r memAssignments) GetByID(_ context.Context, id int64) (*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r memAssignments) ListByInstance(_ context.Context, kind models.FlowKind, instanceID int64) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if a.Kind == kind && a.TaskInstanceID == instanceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r memAssignments) ListByFlow(_ context.Context, kind models.FlowKind, flowID int64) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if inst, ok := r.instances[kind][a.TaskInstanceID]; ok && a.Kind == kind && inst.FlowID == flowID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Apply ведёт себя как транзакция: при ошибке ничего не меняется.
func (r memAssignments) Apply(_ context.Context, c models.AssignmentChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return r.failApply
	}
	r.writes++
	remove := map[int64]bool{}
	for _, u := range c.Remove {
		remove[u] = true
	}
	kept := r.assignments[:0:0]
	for _, a := range r.assignments {
		if a.Kind == c.Kind && a.TaskInstanceID == c.TaskInstanceID && remove[a.UserID] {
			r.history = append(r.history, models.AssignmentHistory{
				ID: r.id(), Kind: c.Kind, TaskInstanceID: c.TaskInstanceID, UserID: a.UserID,
				RemovedBy: c.ActorID, RemovedAt: c.At, StatusAtRemoval: c.StatusAtRemoval,
			})
			continue
		}
		kept = append(kept, a)
	}
	r.assignments = kept
	for _, u := range c.Add {
		by := c.ActorID
		r.assignments = append(r.assignments, models.Assignment{
			ID: r.id(), Kind: c.Kind, TaskInstanceID: c.TaskInstanceID, UserID: u, AssignedBy: &by, AssignedAt: c.At,
		})
	}
	if inst, ok := r.instances[c.Kind][c.TaskInstanceID]; ok {
		inst.AssigneeID = c.AssigneeID
	}
	return nil
}

func (r memAssignments) ListAssignedTasks(_ context.Context, userID int64) ([]models.AssignedTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AssignedTask
	for _, a := range r.assignments {
		if a.UserID != userID {
			continue
		}
		inst := r.instances[a.Kind][a.TaskInstanceID]
		flow := r.flows[a.Kind][inst.FlowID]
		t := models.AssignedTask{
			AssignmentID: a.ID, Kind: a.Kind, TaskInstanceID: inst.ID,
			FlowStatus: flow.Status, TaskStatus: inst.Status,
		}
		if a.Kind == models.FlowKindSale {
			for _, c := range r.collapsed {
				if c.AssignmentID == a.ID && c.UserID == userID {
					until := c.ExpiresAt
					t.CollapsedUntil = &until
				}
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// ===== CommentRepository =====

type memComments struct{ *memStore }

func (r memComments) Create(_ context.Context, c *models.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	c.ID = r.id()
	c.CreatedAt = time.Now()
	r.comments = append(r.comments, *c)
	return nil
}

func (r memComments) GetByID(_ context.Context, id int64) (*models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.comments {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (r memComments) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.comments {
		if c.ID == id {
			r.writes++
			r.comments = append(r.comments[:i], r.comments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("comment %d: %w", id, repositories.ErrNotFound)
}

func (r memComments) ListByInstance(_ context.Context, kind models.FlowKind, instanceID int64) ([]models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Comment
	for i := len(r.comments) - 1; i >= 0; i-- {
		c := r.comments[i]
		if c.Kind == kind && c.TaskInstanceID == instanceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r memComments) CountByFlow(_ context.Context, kind models.FlowKind, flowID int64) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[int64]int{}
	for _, c := range r.comments {
		if inst, ok := r.instances[kind][c.TaskInstanceID]; ok && c.Kind == kind && inst.FlowID == flowID {
			counts[c.TaskInstanceID]++
		}
	}
	return counts, nil
}

// ===== CollapsedTaskRepository =====

type memCollapsed struct{ *memStore }

func (r memCollapsed) Upsert(_ context.Context, c *models.CollapsedTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	for i := range r.collapsed {
		if r.collapsed[i].UserID == c.UserID && r.collapsed[i].AssignmentID == c.AssignmentID {
			r.collapsed[i].ExpiresAt = c.ExpiresAt
			c.ID = r.collapsed[i].ID
			return nil
		}
	}
	c.ID = r.id()
	r.collapsed = append(r.collapsed, *c)
	return nil
}

func (r memCollapsed) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	kept := r.collapsed[:0:0]
	for _, c := range r.collapsed {
		if !c.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.collapsed = kept
	return n, nil
}

// ===== UserRepository =====

type memUsers struct{ *memStore }

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r memUsers) UpdateTelegramLink(_ context.Context, userID, chatID int64, enable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	u.TelegramChatID = chatID
	u.NotifyTelegram = enable
	return nil
}

func (r memUsers) GetByChatID(_ context.Context, chatID int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramChatID == chatID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r memUsers) List(_ context.Context, userType string, limit, offset int) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.User{}
	for _, u := range r.users {
		if userType == "" || u.UserType == userType {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []models.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ===== CommissionRepository / ReservationRepository =====

type memCommissions struct{ *memStore }

func (r memCommissions) GetByID(_ context.Context, id int64) (*models.BrokerCommission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bc, ok := r.commissions[id]
	if !ok {
		return nil, nil
	}
	c := *bc
	return &c, nil
}

func (r memCommissions) MarkPenalized(_ context.Context, id int64, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bc, ok := r.commissions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	r.writes++
	bc.IsPenalized = true
	bc.PenaltyReason = reason
	bc.PenalizedAt = &at
	return nil
}

type memReservations struct{ *memStore }

// Create: резерв и flow пишутся вместе или не пишутся вовсе.
func (r memReservations) Create(_ context.Context, res *models.Reservation, flow *models.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reserv {
		if existing.ReservationNumber == res.ReservationNumber {
			return fmt.Errorf("create reservation %s: %w", res.ReservationNumber, repositories.ErrDuplicate)
		}
	}
	if r.failFlowInsert != nil {
		return r.failFlowInsert
	}
	r.writes++
	res.ID = r.id()
	res.CreatedAt = time.Now()
	c := *res
	r.reserv[res.ID] = &c

	flow.OwnerID = res.ID
	flow.ID = r.id()
	flow.CreatedAt = res.CreatedAt
	fc := *flow
	r.flows[flow.Kind][flow.ID] = &fc
	return nil
}

func (r memReservations) GetByID(_ context.Context, id int64) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reserv[id]
	if !ok {
		return nil, nil
	}
	c := *res
	return &c, nil
}

func (r memReservations) MarkRescinded(_ context.Context, id int64, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reserv[id]
	if !ok || res.IsRescinded {
		return repositories.ErrNotFound
	}
	r.writes++
	res.IsRescinded = true
	res.RescindedAt = &at
	res.RescissionReason = reason
	return nil
}

// ===== observers / sinks =====

type recordingObserver struct {
	mu       sync.Mutex
	statuses []models.TaskStatus
	added    [][]int64
	removed  [][]int64
	comments int
	flows    []models.FlowStatus
}

func (o *recordingObserver) TaskStatusChanged(_ context.Context, inst *models.TaskInstance, _ []int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, inst.Status)
}

func (o *recordingObserver) AssigneesChanged(_ context.Context, _ *models.TaskInstance, added, removed []int64, _ Actor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.added = append(o.added, added)
	o.removed = append(o.removed, removed)
}

func (o *recordingObserver) CommentAdded(_ context.Context, _ *models.Comment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.comments++
}

func (o *recordingObserver) FlowStatusChanged(_ context.Context, flow *models.Flow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flows = append(o.flows, flow.Status)
}

type sentMessage struct {
	userID int64
	msg    realtime.Message
}

type captureSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (c *captureSender) SendToUser(userID int64, msg realtime.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{userID: userID, msg: msg})
}

func (c *captureSender) ofType(userID int64, typ string) []realtime.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []realtime.Message
	for _, s := range c.sent {
		if s.userID == userID && s.msg.Type == typ {
			out = append(out, s.msg)
		}
	}
	return out
}

func (c *captureSender) lastCount(userID int64) (int, bool) {
	msgs := c.ofType(userID, realtime.MsgCount)
	if len(msgs) == 0 {
		return 0, false
	}
	return msgs[len(msgs)-1].Data.(map[string]int)["count"], true
}

var (
	admin  = Actor{UserID: 1, UserType: "Administrador"}
	seller = Actor{UserID: 2, UserType: "Vendedor"}
)

func newWorkflow(s *memStore, obs TaskObserver) *workflowService {
	return NewWorkflowService(memFlows{s}, memTasks{s}, memAssignments{s}, memComments{s}, obs).(*workflowService)
}
