package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverapp/internal/models"
)

func TestFlowCreatePaymentDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewFlowRepository(db)
	stage := int64(50)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO commission_flows (broker_commission_id, flow_id, current_stage_id, status, started_at, is_second_payment)`)).
		WithArgs(int64(7), int64(5), &stage, models.FlowPending, nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(201, time.Now()))
	first := &models.Flow{Kind: models.FlowKindPayment, OwnerID: 7, TemplateID: 5, CurrentStageID: &stage, Status: models.FlowPending}
	require.NoError(t, repo.Create(context.Background(), first))
	assert.Equal(t, int64(201), first.ID)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO commission_flows`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "commission_flows_active_uq"})
	second := &models.Flow{Kind: models.FlowKindPayment, OwnerID: 7, TemplateID: 5, CurrentStageID: &stage, Status: models.FlowPending}
	err = repo.Create(context.Background(), second)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, second.ID)

	// прочие ошибки не маскируются под дубликат
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO commission_flows`)).
		WillReturnError(&pq.Error{Code: "23503"})
	err = repo.Create(context.Background(), second)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
