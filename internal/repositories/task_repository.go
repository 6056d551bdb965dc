package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"inverapp/internal/models"
)

// TaskRepository хранит экземпляры задач (reservation_flow_tasks / commission_flow_tasks).
type TaskRepository interface {
	Find(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error)
	FindByID(ctx context.Context, kind models.FlowKind, id int64) (*models.TaskInstance, error)
	Create(ctx context.Context, inst *models.TaskInstance) error
	UpdateState(ctx context.Context, inst *models.TaskInstance) error
	ListByFlow(ctx context.Context, kind models.FlowKind, flowID int64) ([]models.TaskInstance, error)
}

type taskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) TaskRepository {
	return &taskRepository{db: db}
}

func selectInstance(t flowTables) string {
	return fmt.Sprintf(`SELECT id, %s, task_id, status, completed_at, assignee_id, created_at, updated_at FROM %s`,
		t.instanceFlowFK, t.instances)
}

func scanInstance(row interface{ Scan(...any) error }, kind models.FlowKind) (*models.TaskInstance, error) {
	inst := &models.TaskInstance{Kind: kind}
	if err := row.Scan(
		&inst.ID, &inst.FlowID, &inst.TaskID, &inst.Status,
		&inst.CompletedAt, &inst.AssigneeID, &inst.CreatedAt, &inst.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return inst, nil
}

// Find returns nil, nil when the (flow, task) pair has no instance yet.
func (r *taskRepository) Find(ctx context.Context, kind models.FlowKind, flowID, taskID int64) (*models.TaskInstance, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := selectInstance(t) + fmt.Sprintf(` WHERE %s = $1 AND task_id = $2`, t.instanceFlowFK)
	inst, err := scanInstance(r.db.QueryRowContext(ctx, q, flowID, taskID), kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find task instance: %w", err)
	}
	return inst, nil
}

func (r *taskRepository) FindByID(ctx context.Context, kind models.FlowKind, id int64) (*models.TaskInstance, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	inst, err := scanInstance(r.db.QueryRowContext(ctx, selectInstance(t)+` WHERE id = $1`, id), kind)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task instance: %w", err)
	}
	return inst, nil
}

func (r *taskRepository) Create(ctx context.Context, inst *models.TaskInstance) error {
	t, err := tablesFor(inst.Kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (%s, task_id, status, completed_at, assignee_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at, updated_at`, t.instances, t.instanceFlowFK)
	if err := r.db.QueryRowContext(ctx, q,
		inst.FlowID, inst.TaskID, inst.Status, inst.CompletedAt, inst.AssigneeID,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
		return fmt.Errorf("create task instance: %w", err)
	}
	return nil
}

// UpdateState пишет статус вместе с производными полями одним UPDATE.
func (r *taskRepository) UpdateState(ctx context.Context, inst *models.TaskInstance) error {
	t, err := tablesFor(inst.Kind)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
		UPDATE %s SET status=$1, completed_at=$2, assignee_id=$3, updated_at=NOW()
		WHERE id=$4
		RETURNING updated_at`, t.instances)
	err = r.db.QueryRowContext(ctx, q, inst.Status, inst.CompletedAt, inst.AssigneeID, inst.ID).Scan(&inst.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("update task instance %d: %w", inst.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update task instance: %w", err)
	}
	return nil
}

func (r *taskRepository) ListByFlow(ctx context.Context, kind models.FlowKind, flowID int64) ([]models.TaskInstance, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := selectInstance(t) + fmt.Sprintf(` WHERE %s = $1 ORDER BY id`, t.instanceFlowFK)
	rows, err := r.db.QueryContext(ctx, q, flowID)
	if err != nil {
		return nil, fmt.Errorf("list task instances: %w", err)
	}
	defer rows.Close()

	var out []models.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}
