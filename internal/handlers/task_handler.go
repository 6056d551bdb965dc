package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"inverapp/internal/models"
	"inverapp/internal/services"
)

type TaskHandler struct {
	service services.WorkflowService
}

func NewTaskHandler(service services.WorkflowService) *TaskHandler {
	return &TaskHandler{service: service}
}

type taskPath struct {
	kind   models.FlowKind
	flowID int64
	taskID int64
}

func parseTaskPath(c *gin.Context) (taskPath, bool) {
	kind, ok := parseKind(c)
	if !ok {
		return taskPath{}, false
	}
	flowID, ok := parseID(c, "id")
	if !ok {
		return taskPath{}, false
	}
	taskID, ok := parseID(c, "task_id")
	if !ok {
		return taskPath{}, false
	}
	return taskPath{kind: kind, flowID: flowID, taskID: taskID}, true
}

// @Summary      Детали flow
// @Description  Этапы шаблона с задачами, состоянием экземпляров, исполнителями и числом комментариев
// @Tags         Flows
// @Produce      json
// @Param        kind  path  string  true  "sale | payment"
// @Param        id    path  int     true  "ID flow"
// @Success      200  {object}  models.FlowDetail
// @Failure      404  {object}  map[string]string
// @Router       /flows/{kind}/{id} [get]
func (h *TaskHandler) GetFlowDetail(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	flowID, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.service.GetFlowDetail(c.Request.Context(), kind, flowID)
	if err != nil {
		writeError(c, "task][detail", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GET /flows/:kind/:id/tasks/:task_id
func (h *TaskHandler) GetTask(c *gin.Context) {
	p, ok := parseTaskPath(c)
	if !ok {
		return
	}
	inst, err := h.service.GetTaskInstance(c.Request.Context(), p.kind, p.flowID, p.taskID)
	if err != nil {
		writeError(c, "task][get", err)
		return
	}
	if inst == nil {
		// экземпляр ещё не создан: задача считается pending
		c.JSON(http.StatusOK, gin.H{"task": nil, "status": models.StatusPending})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": inst, "status": inst.Status})
}

type setStatusRequest struct {
	Status      models.TaskStatus `json:"status" binding:"required"`
	CompletedAt *time.Time        `json:"completed_at"` // RFC3339, только администратор
}

// @Summary      Смена статуса задачи
// @Tags         Flows
// @Accept       json
// @Produce      json
// @Param        kind     path  string            true  "sale | payment"
// @Param        id       path  int               true  "ID flow"
// @Param        task_id  path  int               true  "ID шаблонной задачи"
// @Param        body     body  setStatusRequest  true  "Новый статус"
// @Success      200  {object}  services.StatusResult
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]interface{}
// @Router       /flows/{kind}/{id}/tasks/{task_id}/status [put]
func (h *TaskHandler) SetStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p, ok := parseTaskPath(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][status][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("[task][status] user=%d kind=%s flow=%d task=%d to=%s", actor.UserID, p.kind, p.flowID, p.taskID, req.Status)

	res, err := h.service.SetTaskStatus(c.Request.Context(), actor, p.kind, p.flowID, p.taskID, req.Status, req.CompletedAt)
	if err != nil {
		writeConfirmed(c, "task][status", err, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type setAssigneesRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// @Summary      Сверка исполнителей задачи
// @Description  Приводит набор исполнителей к переданному: лишние снимаются (с историей), новые добавляются
// @Tags         Flows
// @Accept       json
// @Produce      json
// @Param        kind     path  string               true  "sale | payment"
// @Param        id       path  int                  true  "ID flow"
// @Param        task_id  path  int                  true  "ID шаблонной задачи"
// @Param        body     body  setAssigneesRequest  true  "Желаемые исполнители"
// @Success      200  {object}  services.AssigneesResult
// @Router       /flows/{kind}/{id}/tasks/{task_id}/assignees [put]
func (h *TaskHandler) SetAssignees(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p, ok := parseTaskPath(c)
	if !ok {
		return
	}
	var req setAssigneesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.service.ReconcileAssignees(c.Request.Context(), actor, p.kind, p.flowID, p.taskID, req.UserIDs)
	if err != nil {
		writeConfirmed(c, "task][assignees", err, res)
		return
	}
	log.Printf("[task][assignees][ok] kind=%s flow=%d task=%d added=%v removed=%v", p.kind, p.flowID, p.taskID, res.Added, res.Removed)
	c.JSON(http.StatusOK, res)
}

// writeConfirmed: ошибка вместе с последним подтверждённым состоянием, чтобы клиент откатил UI.
func writeConfirmed(c *gin.Context, tag string, err error, confirmed interface{}) {
	status := statusFor(err)
	log.Printf("[%s][err] status=%d: %v", tag, status, err)
	body := gin.H{"error": err.Error()}
	switch v := confirmed.(type) {
	case *services.StatusResult:
		if v != nil {
			body["task"] = v.Task
		}
	case *services.AssigneesResult:
		if v != nil {
			body["task"] = v.Task
			body["assignees"] = v.Assignees
		}
	}
	c.JSON(status, body)
}

// GET /flows/:kind/:id/tasks/:task_id/comments
func (h *TaskHandler) ListComments(c *gin.Context) {
	p, ok := parseTaskPath(c)
	if !ok {
		return
	}
	list, err := h.service.ListComments(c.Request.Context(), p.kind, p.flowID, p.taskID)
	if err != nil {
		writeError(c, "task][comments", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type addCommentRequest struct {
	Body     string  `json:"body"`
	Mentions []int64 `json:"mentions"`
}

// POST /flows/:kind/:id/tasks/:task_id/comments
func (h *TaskHandler) AddComment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p, ok := parseTaskPath(c)
	if !ok {
		return
	}
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := h.service.AddComment(c.Request.Context(), actor, p.kind, p.flowID, p.taskID, req.Body, req.Mentions)
	if err != nil {
		writeError(c, "task][comment", err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DELETE /comments/:id
func (h *TaskHandler) DeleteComment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteComment(c.Request.Context(), actor, id); err != nil {
		writeError(c, "task][comment][delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}
