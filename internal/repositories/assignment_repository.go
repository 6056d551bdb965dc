package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"inverapp/internal/models"
)

type AssignmentRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Assignment, error)
	ListByInstance(ctx context.Context, kind models.FlowKind, instanceID int64) ([]models.Assignment, error)
	ListByFlow(ctx context.Context, kind models.FlowKind, flowID int64) ([]models.Assignment, error)
	// Apply применяет сверку назначений в одной транзакции; assignee_id пишется последним.
	Apply(ctx context.Context, change models.AssignmentChange) error
	ListAssignedTasks(ctx context.Context, userID int64) ([]models.AssignedTask, error)
}

type assignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

const selectAssignment = `SELECT a.id, a.flow_kind, a.task_instance_id, a.user_id, a.assigned_by, a.assigned_at FROM task_assignments a`

func scanAssignments(rows *sql.Rows) ([]models.Assignment, error) {
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.ID, &a.Kind, &a.TaskInstanceID, &a.UserID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *assignmentRepository) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.QueryRowContext(ctx, selectAssignment+` WHERE a.id = $1`, id).
		Scan(&a.ID, &a.Kind, &a.TaskInstanceID, &a.UserID, &a.AssignedBy, &a.AssignedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

func (r *assignmentRepository) ListByInstance(ctx context.Context, kind models.FlowKind, instanceID int64) ([]models.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		selectAssignment+` WHERE a.flow_kind = $1 AND a.task_instance_id = $2 ORDER BY a.assigned_at, a.id`,
		kind, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return scanAssignments(rows)
}

func (r *assignmentRepository) ListByFlow(ctx context.Context, kind models.FlowKind, flowID int64) ([]models.Assignment, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := selectAssignment + fmt.Sprintf(`
		JOIN %s i ON i.id = a.task_instance_id
		WHERE a.flow_kind = $1 AND i.%s = $2
		ORDER BY a.assigned_at, a.id`, t.instances, t.instanceFlowFK)
	rows, err := r.db.QueryContext(ctx, q, kind, flowID)
	if err != nil {
		return nil, fmt.Errorf("list flow assignments: %w", err)
	}
	return scanAssignments(rows)
}

func (r *assignmentRepository) Apply(ctx context.Context, change models.AssignmentChange) error {
	t, err := tablesFor(change.Kind)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := applyAssignmentChange(ctx, tx, t, change); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applyAssignmentChange(ctx context.Context, tx *sql.Tx, t flowTables, c models.AssignmentChange) error {
	for _, userID := range c.Remove {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM task_assignments WHERE flow_kind = $1 AND task_instance_id = $2 AND user_id = $3`,
			c.Kind, c.TaskInstanceID, userID)
		if err != nil {
			return fmt.Errorf("remove assignee %d: %w", userID, err)
		}
		// строки уже нет (параллельное снятие): истории не пишем
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_assignment_history (flow_kind, task_instance_id, user_id, removed_by, removed_at, status_at_removal)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			c.Kind, c.TaskInstanceID, userID, c.ActorID, c.At, c.StatusAtRemoval,
		); err != nil {
			return fmt.Errorf("history for assignee %d: %w", userID, err)
		}
	}
	for _, userID := range c.Add {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_assignments (flow_kind, task_instance_id, user_id, assigned_by, assigned_at)
			VALUES ($1,$2,$3,$4,$5)`,
			c.Kind, c.TaskInstanceID, userID, c.ActorID, c.At,
		); err != nil {
			return fmt.Errorf("add assignee %d: %w", userID, err)
		}
	}
	q := fmt.Sprintf(`UPDATE %s SET assignee_id=$1, updated_at=NOW() WHERE id=$2`, t.instances)
	if _, err := tx.ExecContext(ctx, q, c.AssigneeID, c.TaskInstanceID); err != nil {
		return fmt.Errorf("update assignee_id: %w", err)
	}
	return nil
}

// ListAssignedTasks returns every assignment of the user with the flow/task status
// and the collapse marker (sale flows only) needed to recount the badge.
func (r *assignmentRepository) ListAssignedTasks(ctx context.Context, userID int64) ([]models.AssignedTask, error) {
	q := fmt.Sprintf(`
		SELECT a.id, a.flow_kind, i.id, f.status, i.status, c.expires_at
		FROM task_assignments a
		JOIN %[1]s i ON i.id = a.task_instance_id
		JOIN %[2]s f ON f.id = i.%[3]s
		LEFT JOIN collapsed_tasks c ON c.assignment_id = a.id AND c.user_id = a.user_id
		WHERE a.flow_kind = 'sale' AND a.user_id = $1
		UNION ALL
		SELECT a.id, a.flow_kind, i.id, f.status, i.status, NULL::timestamptz
		FROM task_assignments a
		JOIN %[4]s i ON i.id = a.task_instance_id
		JOIN %[5]s f ON f.id = i.%[6]s
		WHERE a.flow_kind = 'payment' AND a.user_id = $1`,
		saleTables.instances, saleTables.flows, saleTables.instanceFlowFK,
		paymentTables.instances, paymentTables.flows, paymentTables.instanceFlowFK,
	)
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list assigned tasks: %w", err)
	}
	defer rows.Close()

	var out []models.AssignedTask
	for rows.Next() {
		var t models.AssignedTask
		if err := rows.Scan(&t.AssignmentID, &t.Kind, &t.TaskInstanceID, &t.FlowStatus, &t.TaskStatus, &t.CollapsedUntil); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
