package repositories

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverapp/internal/models"
)

func newMock(t *testing.T) (*assignmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &assignmentRepository{db: db}, mock
}

func TestApplyWritesInOrder(t *testing.T) {
	repo, mock := newMock(t)
	single := int64(7)
	change := models.AssignmentChange{
		Kind:            models.FlowKindSale,
		TaskInstanceID:  42,
		Remove:          []int64{3, 4},
		Add:             []int64{7},
		ActorID:         1,
		StatusAtRemoval: models.StatusInProgress,
		AssigneeID:      &single,
		At:              time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_assignments`)).
		WithArgs(models.FlowKindSale, int64(42), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO task_assignment_history`)).
		WithArgs(models.FlowKindSale, int64(42), int64(3), int64(1), sqlmock.AnyArg(), models.StatusInProgress).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// 4 уже снят кем-то другим: истории нет
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_assignments`)).
		WithArgs(models.FlowKindSale, int64(42), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO task_assignments`)).
		WithArgs(models.FlowKindSale, int64(42), int64(7), int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reservation_flow_tasks SET assignee_id=$1`)).
		WithArgs(&single, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Apply(context.Background(), change))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := newMock(t)
	change := models.AssignmentChange{
		Kind:           models.FlowKindPayment,
		TaskInstanceID: 5,
		Add:            []int64{2},
		ActorID:        1,
		At:             time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO task_assignments`)).
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := repo.Apply(context.Background(), change)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUnknownKind(t *testing.T) {
	repo, mock := newMock(t)
	err := repo.Apply(context.Background(), models.AssignmentChange{Kind: "rental"})
	assert.ErrorIs(t, err, ErrUnknownFlowKind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByFlowJoinsInstances(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "flow_kind", "task_instance_id", "user_id", "assigned_by", "assigned_at"}).
		AddRow(1, "payment", 10, 3, nil, now).
		AddRow(2, "payment", 11, 4, 1, now)
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN commission_flow_tasks i ON i.id = a.task_instance_id`)).
		WithArgs(models.FlowKindPayment, int64(77)).
		WillReturnRows(rows)

	got, err := repo.ListByFlow(context.Background(), models.FlowKindPayment, 77)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].AssignedBy)
	require.NotNil(t, got[1].AssignedBy)
	assert.Equal(t, int64(1), *got[1].AssignedBy)
	assert.Equal(t, models.FlowKindPayment, got[1].Kind)
}

func TestListAssignedTasks(t *testing.T) {
	repo, mock := newMock(t)
	until := time.Now().Add(time.Hour)
	rows := sqlmock.NewRows([]string{"id", "flow_kind", "task_instance_id", "flow_status", "task_status", "expires_at"}).
		AddRow(1, "sale", 10, "in_progress", "pending", until).
		AddRow(2, "payment", 20, "in_progress", "blocked", nil)
	mock.ExpectQuery(regexp.QuoteMeta(`UNION ALL`)).WithArgs(int64(9)).WillReturnRows(rows)

	got, err := repo.ListAssignedTasks(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].CollapsedUntil)
	assert.Equal(t, models.StatusBlocked, got[1].TaskStatus)
	assert.Equal(t, 0, models.PendingTaskCount(got, time.Now()))
}
