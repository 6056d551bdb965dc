package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"inverapp/internal/models"
)

type ReservationRepository interface {
	// Create сохраняет резерв и его sale flow одной транзакцией; flow.OwnerID заполняется id резерва.
	Create(ctx context.Context, r *models.Reservation, flow *models.Flow) error
	GetByID(ctx context.Context, id int64) (*models.Reservation, error)
	MarkRescinded(ctx context.Context, id int64, reason string, at time.Time) error
}

type reservationRepository struct{ db *sql.DB }

func NewReservationRepository(db *sql.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation, flow *models.Flow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := insertReservation(ctx, tx, res); err != nil {
		_ = tx.Rollback()
		return err
	}
	flow.OwnerID = res.ID
	if err := insertFlow(ctx, tx, flow); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, res *models.Reservation) error {
	const q = `
		INSERT INTO reservations (reservation_number, project_name, apartment_number, client_name, seller_id, broker_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, q,
		res.ReservationNumber, res.ProjectName, res.ApartmentNumber, res.ClientName, res.SellerID, res.BrokerID,
	).Scan(&res.ID, &res.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create reservation %s: %w", res.ReservationNumber, ErrDuplicate)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	const q = `
		SELECT id, reservation_number, project_name, apartment_number, client_name, seller_id, broker_id,
		       is_rescinded, rescinded_at, COALESCE(rescission_reason,''), created_at
		FROM reservations WHERE id=$1`
	var res models.Reservation
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&res.ID, &res.ReservationNumber, &res.ProjectName, &res.ApartmentNumber, &res.ClientName,
		&res.SellerID, &res.BrokerID, &res.IsRescinded, &res.RescindedAt, &res.RescissionReason, &res.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

func (r *reservationRepository) MarkRescinded(ctx context.Context, id int64, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET is_rescinded=TRUE, rescinded_at=$1, rescission_reason=$2 WHERE id=$3 AND is_rescinded=FALSE`,
		at, reason, id)
	if err != nil {
		return fmt.Errorf("rescind reservation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return nil
}
