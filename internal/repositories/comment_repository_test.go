package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverapp/internal/models"
)

func TestCommentListNewestFirstWithMentions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCommentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "flow_kind", "task_instance_id", "author_id", "body", "mentioned_users", "created_at"}).
		AddRow(2, "sale", 10, 1, "segundo", "{3,4}", now).
		AddRow(1, "sale", 10, 1, "primero", "{}", now.Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, id DESC`)).
		WithArgs(models.FlowKindSale, int64(10)).
		WillReturnRows(rows)

	got, err := repo.ListByInstance(context.Background(), models.FlowKindSale, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "segundo", got[0].Body)
	assert.Equal(t, []int64{3, 4}, got[0].Mentions)
	assert.Empty(t, got[1].Mentions)
}

func TestCommentDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCommentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM task_comments WHERE id = $1`)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Delete(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommentCountByFlow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewCommentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN reservation_flow_tasks i ON i.id = c.task_instance_id`)).
		WithArgs(models.FlowKindSale, int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"task_instance_id", "count"}).AddRow(10, 2).AddRow(11, 1))

	counts, err := repo.CountByFlow(context.Background(), models.FlowKindSale, 4)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{10: 2, 11: 1}, counts)
}
