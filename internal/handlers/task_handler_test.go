package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inverapp/internal/models"
	"inverapp/internal/services"
)

type mockWorkflow struct{ mock.Mock }

func (m *mockWorkflow) GetFlowDetail(ctx context.Context, kind models.FlowKind, flowID int64) (*models.FlowDetail, error) {
	args := m.Called(kind, flowID)
	d, _ := args.Get(0).(*models.FlowDetail)
	return d, args.Error(1)
}

func (m *mockWorkflow) GetTaskInstance(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error) {
	args := m.Called(kind, flowID, taskID)
	t, _ := args.Get(0).(*models.TaskInstance)
	return t, args.Error(1)
}

func (m *mockWorkflow) SetTaskStatus(ctx context.Context, actor services.Actor, kind models.FlowKind, flowID, taskID int64, to models.TaskStatus, completedAt *time.Time) (*services.StatusResult, error) {
	args := m.Called(actor, kind, flowID, taskID, to, completedAt)
	r, _ := args.Get(0).(*services.StatusResult)
	return r, args.Error(1)
}

func (m *mockWorkflow) ReconcileAssignees(ctx context.Context, actor services.Actor, kind models.FlowKind, flowID, taskID int64, desired []int64) (*services.AssigneesResult, error) {
	args := m.Called(actor, kind, flowID, taskID, desired)
	r, _ := args.Get(0).(*services.AssigneesResult)
	return r, args.Error(1)
}

func (m *mockWorkflow) AddComment(ctx context.Context, actor services.Actor, kind models.FlowKind, flowID, taskID int64, body string, mentions []int64) (*models.Comment, error) {
	args := m.Called(actor, kind, flowID, taskID, body, mentions)
	cm, _ := args.Get(0).(*models.Comment)
	return cm, args.Error(1)
}

func (m *mockWorkflow) DeleteComment(ctx context.Context, actor services.Actor, commentID int64) error {
	return m.Called(actor, commentID).Error(0)
}

func (m *mockWorkflow) ListComments(ctx context.Context, kind models.FlowKind, flowID, taskID int64) ([]models.Comment, error) {
	args := m.Called(kind, flowID, taskID)
	l, _ := args.Get(0).([]models.Comment)
	return l, args.Error(1)
}

var seller = services.Actor{UserID: 2, UserType: "Vendedor"}

// withActor имитирует AuthMiddleware.
func withActor(actor services.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", actor.UserID)
		c.Set("user_type", actor.UserType)
		c.Next()
	}
}

func taskRouter(wf services.WorkflowService, actor *services.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if actor != nil {
		r.Use(withActor(*actor))
	}
	h := NewTaskHandler(wf)
	g := r.Group("/flows/:kind/:id")
	g.GET("", h.GetFlowDetail)
	g.GET("/tasks/:task_id", h.GetTask)
	g.PUT("/tasks/:task_id/status", h.SetStatus)
	g.PUT("/tasks/:task_id/assignees", h.SetAssignees)
	g.POST("/tasks/:task_id/comments", h.AddComment)
	r.DELETE("/comments/:id", h.DeleteComment)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		services.ErrValidation:                        http.StatusBadRequest,
		services.ErrInvalidCredentials:                http.StatusUnauthorized,
		fmt.Errorf("wrap: %w", services.ErrForbidden): http.StatusForbidden,
		services.ErrNotFound:                          http.StatusNotFound,
		services.ErrConflict:                          http.StatusConflict,
		errors.New("db is down"):                      http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestSetStatus_OK(t *testing.T) {
	wf := new(mockWorkflow)
	inst := &models.TaskInstance{ID: 1, Kind: models.FlowKindSale, FlowID: 100, TaskID: 11, Status: models.StatusInProgress}
	wf.On("SetTaskStatus", seller, models.FlowKindSale, int64(100), int64(11), models.StatusInProgress, (*time.Time)(nil)).
		Return(&services.StatusResult{Task: inst, StageID: 1}, nil)

	w := doJSON(taskRouter(wf, &seller), http.MethodPut, "/flows/sale/100/tasks/11/status", gin.H{"status": "in_progress"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	task := body["task"].(map[string]interface{})
	assert.Equal(t, "in_progress", task["status"])
	wf.AssertExpectations(t)
}

func TestSetStatus_ErrorCarriesConfirmedTask(t *testing.T) {
	wf := new(mockWorkflow)
	confirmed := &models.TaskInstance{ID: 1, Kind: models.FlowKindSale, FlowID: 100, TaskID: 11, Status: models.StatusCompleted}
	wf.On("SetTaskStatus", seller, models.FlowKindSale, int64(100), int64(11), models.StatusPending, (*time.Time)(nil)).
		Return(&services.StatusResult{Task: confirmed}, fmt.Errorf("%w: only admin can reopen", services.ErrForbidden))

	w := doJSON(taskRouter(wf, &seller), http.MethodPut, "/flows/sale/100/tasks/11/status", gin.H{"status": "pending"})

	require.Equal(t, http.StatusForbidden, w.Code)
	body := decode(t, w)
	assert.Contains(t, body["error"], "only admin can reopen")
	task := body["task"].(map[string]interface{})
	assert.Equal(t, "completed", task["status"])
}

func TestSetStatus_BadPath(t *testing.T) {
	wf := new(mockWorkflow)
	r := taskRouter(wf, &seller)

	w := doJSON(r, http.MethodPut, "/flows/rental/100/tasks/11/status", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/flows/sale/abc/tasks/11/status", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPut, "/flows/sale/100/tasks/11/status", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	wf.AssertNotCalled(t, "SetTaskStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetStatus_Unauthorized(t *testing.T) {
	wf := new(mockWorkflow)
	w := doJSON(taskRouter(wf, nil), http.MethodPut, "/flows/sale/100/tasks/11/status", gin.H{"status": "pending"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetAssignees_ErrorCarriesAssignees(t *testing.T) {
	wf := new(mockWorkflow)
	confirmed := &services.AssigneesResult{
		Task:      &models.TaskInstance{ID: 1, Status: models.StatusInProgress},
		Assignees: []models.Assignment{{ID: 5, UserID: 3}},
	}
	wf.On("ReconcileAssignees", seller, models.FlowKindPayment, int64(200), int64(51), []int64{2, 3}).
		Return(confirmed, errors.New("tx aborted"))

	w := doJSON(taskRouter(wf, &seller), http.MethodPut, "/flows/payment/200/tasks/51/assignees", gin.H{"user_ids": []int64{2, 3}})

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "tx aborted", body["error"])
	assert.Len(t, body["assignees"], 1)
}

func TestGetTask_NoInstanceIsPending(t *testing.T) {
	wf := new(mockWorkflow)
	wf.On("GetTaskInstance", models.FlowKindSale, int64(100), int64(21)).Return(nil, nil)

	w := doJSON(taskRouter(wf, &seller), http.MethodGet, "/flows/sale/100/tasks/21", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["task"])
	assert.Equal(t, "pending", body["status"])
}

func TestGetFlowDetail_NotFound(t *testing.T) {
	wf := new(mockWorkflow)
	wf.On("GetFlowDetail", models.FlowKindSale, int64(404)).Return(nil, fmt.Errorf("flow: %w", services.ErrNotFound))

	w := doJSON(taskRouter(wf, &seller), http.MethodGet, "/flows/sale/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddComment_Created(t *testing.T) {
	wf := new(mockWorkflow)
	wf.On("AddComment", seller, models.FlowKindSale, int64(100), int64(11), "revisar pie", []int64{3}).
		Return(&models.Comment{ID: 9, AuthorID: 2, Body: "revisar pie"}, nil)

	w := doJSON(taskRouter(wf, &seller), http.MethodPost, "/flows/sale/100/tasks/11/comments",
		gin.H{"body": "revisar pie", "mentions": []int64{3}})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "revisar pie", decode(t, w)["body"])
}

func TestDeleteComment(t *testing.T) {
	wf := new(mockWorkflow)
	wf.On("DeleteComment", seller, int64(9)).Return(nil).Once()
	wf.On("DeleteComment", seller, int64(10)).Return(services.ErrNotFound).Once()
	r := taskRouter(wf, &seller)

	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/comments/9", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodDelete, "/comments/10", nil).Code)
}
