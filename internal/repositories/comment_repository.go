package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"inverapp/internal/models"
)

type CommentRepository interface {
	Create(ctx context.Context, c *models.Comment) error
	GetByID(ctx context.Context, id int64) (*models.Comment, error)
	Delete(ctx context.Context, id int64) error
	ListByInstance(ctx context.Context, kind models.FlowKind, instanceID int64) ([]models.Comment, error)
	CountByFlow(ctx context.Context, kind models.FlowKind, flowID int64) (map[int64]int, error)
}

type commentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, c *models.Comment) error {
	const q = `
		INSERT INTO task_comments (flow_kind, task_instance_id, author_id, body, mentioned_users)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, q,
		c.Kind, c.TaskInstanceID, c.AuthorID, c.Body, pq.Array(c.Mentions),
	).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id int64) (*models.Comment, error) {
	const q = `SELECT id, flow_kind, task_instance_id, author_id, body, mentioned_users, created_at
		FROM task_comments WHERE id = $1`
	var (
		c        models.Comment
		mentions pq.Int64Array
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Kind, &c.TaskInstanceID, &c.AuthorID, &c.Body, &mentions, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	c.Mentions = []int64(mentions)
	return &c, nil
}

func (r *commentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListByInstance: новые сверху.
func (r *commentRepository) ListByInstance(ctx context.Context, kind models.FlowKind, instanceID int64) ([]models.Comment, error) {
	const q = `
		SELECT id, flow_kind, task_instance_id, author_id, body, mentioned_users, created_at
		FROM task_comments
		WHERE flow_kind = $1 AND task_instance_id = $2
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, kind, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var (
			c        models.Comment
			mentions pq.Int64Array
		)
		if err := rows.Scan(&c.ID, &c.Kind, &c.TaskInstanceID, &c.AuthorID, &c.Body, &mentions, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Mentions = []int64(mentions)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *commentRepository) CountByFlow(ctx context.Context, kind models.FlowKind, flowID int64) (map[int64]int, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT c.task_instance_id, COUNT(*)
		FROM task_comments c
		JOIN %s i ON i.id = c.task_instance_id
		WHERE c.flow_kind = $1 AND i.%s = $2
		GROUP BY c.task_instance_id`, t.instances, t.instanceFlowFK)
	rows, err := r.db.QueryContext(ctx, q, kind, flowID)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			instanceID int64
			n          int
		)
		if err := rows.Scan(&instanceID, &n); err != nil {
			return nil, err
		}
		counts[instanceID] = n
	}
	return counts, rows.Err()
}
