package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"inverapp/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]models.Document, error)
}

type documentRepository struct{ db *sql.DB }

func NewDocumentRepository(db *sql.DB) DocumentRepository { return &documentRepository{db: db} }

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	const q = `
		INSERT INTO documents (doc_type, owner_kind, owner_id, file_path, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(ctx, q,
		doc.DocType, doc.OwnerKind, doc.OwnerID, doc.FilePath, doc.CreatedBy,
	).Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	const q = `SELECT id, doc_type, owner_kind, owner_id, file_path, created_by, created_at FROM documents WHERE id=$1`
	var d models.Document
	err := r.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.DocType, &d.OwnerKind, &d.OwnerID, &d.FilePath, &d.CreatedBy, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &d, nil
}

func (r *documentRepository) ListByOwner(ctx context.Context, ownerKind string, ownerID int64) ([]models.Document, error) {
	const q = `SELECT id, doc_type, owner_kind, owner_id, file_path, created_by, created_at
			   FROM documents WHERE owner_kind=$1 AND owner_id=$2 ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, q, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var res []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.DocType, &d.OwnerKind, &d.OwnerID, &d.FilePath, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
