package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"inverapp/internal/models"
)

type FlowRepository interface {
	GetByID(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error)
	Create(ctx context.Context, flow *models.Flow) error
	UpdateStatus(ctx context.Context, flow *models.Flow) error
	SetCurrentStage(ctx context.Context, kind models.FlowKind, flowID, stageID int64) error
	FindActivePaymentFlow(ctx context.Context, commissionID int64) (*models.Flow, error)
	FindSaleFlow(ctx context.Context, reservationID int64) (*models.Flow, error)

	// шаблоны
	ListStages(ctx context.Context, kind models.FlowKind, templateID int64) ([]models.Stage, error)
	GetStage(ctx context.Context, kind models.FlowKind, stageID int64) (*models.Stage, error)
	ListTemplateTasks(ctx context.Context, kind models.FlowKind, templateID int64) ([]models.TemplateTask, error)
	GetTemplateTask(ctx context.Context, kind models.FlowKind, taskID int64) (*models.TemplateTask, error)
}

type flowRepository struct {
	db *sql.DB
}

func NewFlowRepository(db *sql.DB) FlowRepository {
	return &flowRepository{db: db}
}

func (r *flowRepository) selectFlow(t flowTables) string {
	return fmt.Sprintf(`SELECT id, %s, flow_id, current_stage_id, status, started_at, completed_at, %s, created_at
		FROM %s`, t.ownerColumn, t.secondPayment, t.flows)
}

func scanFlow(row interface{ Scan(...any) error }, kind models.FlowKind) (*models.Flow, error) {
	f := &models.Flow{Kind: kind}
	if err := row.Scan(
		&f.ID, &f.OwnerID, &f.TemplateID, &f.CurrentStageID, &f.Status,
		&f.StartedAt, &f.CompletedAt, &f.IsSecondPayment, &f.CreatedAt,
	); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *flowRepository) GetByID(ctx context.Context, kind models.FlowKind, id int64) (*models.Flow, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	f, err := scanFlow(r.db.QueryRowContext(ctx, r.selectFlow(t)+` WHERE id = $1`, id), kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	return f, nil
}

func (r *flowRepository) Create(ctx context.Context, flow *models.Flow) error {
	return insertFlow(ctx, r.db, flow)
}

func insertFlow(ctx context.Context, db queryRower, flow *models.Flow) error {
	t, err := tablesFor(flow.Kind)
	if err != nil {
		return err
	}
	var q string
	args := []any{flow.OwnerID, flow.TemplateID, flow.CurrentStageID, flow.Status, flow.StartedAt}
	if flow.Kind == models.FlowKindPayment {
		q = fmt.Sprintf(`INSERT INTO %s (%s, flow_id, current_stage_id, status, started_at, is_second_payment)
			VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`, t.flows, t.ownerColumn)
		args = append(args, flow.IsSecondPayment)
	} else {
		q = fmt.Sprintf(`INSERT INTO %s (%s, flow_id, current_stage_id, status, started_at)
			VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, t.flows, t.ownerColumn)
	}
	if err := db.QueryRowContext(ctx, q, args...).Scan(&flow.ID, &flow.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create flow: %w", ErrDuplicate)
		}
		return fmt.Errorf("create flow: %w", err)
	}
	return nil
}

func (r *flowRepository) UpdateStatus(ctx context.Context, flow *models.Flow) error {
	t, err := tablesFor(flow.Kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET status=$1, started_at=$2, completed_at=$3 WHERE id=$4`, t.flows)
	if _, err := r.db.ExecContext(ctx, q, flow.Status, flow.StartedAt, flow.CompletedAt, flow.ID); err != nil {
		return fmt.Errorf("update flow status: %w", err)
	}
	return nil
}

func (r *flowRepository) SetCurrentStage(ctx context.Context, kind models.FlowKind, flowID, stageID int64) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET current_stage_id=$1 WHERE id=$2`, t.flows)
	if _, err := r.db.ExecContext(ctx, q, stageID, flowID); err != nil {
		return fmt.Errorf("set current stage: %w", err)
	}
	return nil
}

// FindActivePaymentFlow: последний flow выплаты комиссии, не являющийся "second payment".
func (r *flowRepository) FindActivePaymentFlow(ctx context.Context, commissionID int64) (*models.Flow, error) {
	q := r.selectFlow(paymentTables) + `
		WHERE broker_commission_id = $1 AND is_second_payment = FALSE
		ORDER BY created_at DESC
		LIMIT 1`
	f, err := scanFlow(r.db.QueryRowContext(ctx, q, commissionID), models.FlowKindPayment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment flow: %w", err)
	}
	return f, nil
}

func (r *flowRepository) FindSaleFlow(ctx context.Context, reservationID int64) (*models.Flow, error) {
	q := r.selectFlow(saleTables) + ` WHERE reservation_id = $1 ORDER BY created_at DESC LIMIT 1`
	f, err := scanFlow(r.db.QueryRowContext(ctx, q, reservationID), models.FlowKindSale)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sale flow: %w", err)
	}
	return f, nil
}

func (r *flowRepository) ListStages(ctx context.Context, kind models.FlowKind, templateID int64) ([]models.Stage, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, flow_id, name, "order" FROM %s WHERE flow_id = $1 ORDER BY "order"`, t.stages)
	rows, err := r.db.QueryContext(ctx, q, templateID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var s models.Stage
		if err := rows.Scan(&s.ID, &s.TemplateID, &s.Name, &s.Order); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *flowRepository) GetStage(ctx context.Context, kind models.FlowKind, stageID int64) (*models.Stage, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, flow_id, name, "order" FROM %s WHERE id = $1`, t.stages)
	var s models.Stage
	err = r.db.QueryRowContext(ctx, q, stageID).Scan(&s.ID, &s.TemplateID, &s.Name, &s.Order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage: %w", err)
	}
	return &s, nil
}

func (r *flowRepository) ListTemplateTasks(ctx context.Context, kind models.FlowKind, templateID int64) ([]models.TemplateTask, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT t.id, t.stage_id, t.name, t."order"
		FROM %s t
		JOIN %s s ON s.id = t.stage_id
		WHERE s.flow_id = $1
		ORDER BY s."order", t."order"`, t.tasks, t.stages)
	rows, err := r.db.QueryContext(ctx, q, templateID)
	if err != nil {
		return nil, fmt.Errorf("list template tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.TemplateTask
	for rows.Next() {
		var tt models.TemplateTask
		if err := rows.Scan(&tt.ID, &tt.StageID, &tt.Name, &tt.Order); err != nil {
			return nil, err
		}
		tasks = append(tasks, tt)
	}
	return tasks, rows.Err()
}

func (r *flowRepository) GetTemplateTask(ctx context.Context, kind models.FlowKind, taskID int64) (*models.TemplateTask, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, stage_id, name, "order" FROM %s WHERE id = $1`, t.tasks)
	var tt models.TemplateTask
	err = r.db.QueryRowContext(ctx, q, taskID).Scan(&tt.ID, &tt.StageID, &tt.Name, &tt.Order)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template task: %w", err)
	}
	return &tt, nil
}
