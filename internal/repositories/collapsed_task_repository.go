package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inverapp/internal/models"
)

type CollapsedTaskRepository interface {
	Upsert(ctx context.Context, c *models.CollapsedTask) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type collapsedTaskRepository struct {
	db *sql.DB
}

func NewCollapsedTaskRepository(db *sql.DB) CollapsedTaskRepository {
	return &collapsedTaskRepository{db: db}
}

// Upsert продлевает существующую отметку или создаёт новую (уникальность по user_id + assignment_id).
func (r *collapsedTaskRepository) Upsert(ctx context.Context, c *models.CollapsedTask) error {
	const q = `
		INSERT INTO collapsed_tasks (user_id, assignment_id, expires_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, assignment_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, q, c.UserID, c.AssignmentID, c.ExpiresAt).Scan(&c.ID); err != nil {
		return fmt.Errorf("collapse task: %w", err)
	}
	return nil
}

func (r *collapsedTaskRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM collapsed_tasks WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired collapsed tasks: %w", err)
	}
	return res.RowsAffected()
}
