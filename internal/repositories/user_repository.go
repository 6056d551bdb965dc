package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"inverapp/internal/models"
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List: справочник для выбора исполнителей; userType пустой = все.
	List(ctx context.Context, userType string, limit, offset int) ([]models.User, error)

	// Telegram helpers
	UpdateTelegramLink(ctx context.Context, userID, chatID int64, enable bool) error
	GetByChatID(ctx context.Context, chatID int64) (*models.User, error)
}

type userRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

const selectUser = `
	SELECT
		id, email, COALESCE(first_name,''), COALESCE(last_name,''), user_type, password_hash,
		COALESCE(telegram_chat_id,0), COALESCE(notify_tasks_telegram,TRUE)
	FROM users`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.UserType, &u.PasswordHash,
		&u.TelegramChatID, &u.NotifyTelegram,
	); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, selectUser+` WHERE LOWER(email) = LOWER($1)`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) UpdateTelegramLink(ctx context.Context, userID, chatID int64, enable bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id=$1, notify_tasks_telegram=$2 WHERE id=$3`,
		chatID, enable, userID)
	return err
}

func (r *userRepository) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, selectUser+` WHERE telegram_chat_id = $1`, chatID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by chat: %w", err)
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context, userType string, limit, offset int) ([]models.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		selectUser+` WHERE ($1 = '' OR user_type = $1) ORDER BY first_name, last_name, id LIMIT $2 OFFSET $3`,
		userType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
