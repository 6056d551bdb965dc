package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inverapp/internal/models"
	"inverapp/internal/pdf"
)

type memDocs struct {
	mu   sync.Mutex
	docs []models.Document
}

func (r *memDocs) Create(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.ID = int64(len(r.docs) + 1)
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *memDocs) GetByID(_ context.Context, id int64) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (r *memDocs) ListByOwner(_ context.Context, ownerKind string, ownerID int64) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Document
	for _, d := range r.docs {
		if d.OwnerKind == ownerKind && d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

func newDocumentFixture(t *testing.T) (*DocumentService, *memStore, string) {
	t.Helper()
	s := newMemStore()
	root := t.TempDir()
	wf := newWorkflow(s, nil)
	svc := NewDocumentService(
		&memDocs{}, wf, memFlows{s}, memReservations{s}, memCommissions{s}, memUsers{s},
		root, pdf.NewDocumentGenerator(root, filepath.Join(root, "missing.ttf")),
	)
	return svc, s, root
}

func TestGenerateFlowReport(t *testing.T) {
	svc, s, root := newDocumentFixture(t)
	ctx := context.Background()
	s.seedInstance(models.FlowKindSale, 100, 11, models.StatusCompleted, 2)
	s.seedInstance(models.FlowKindSale, 100, 12, models.StatusInProgress, 2, 3)

	doc, err := svc.GenerateFlowReport(ctx, admin, models.FlowKindSale, 100)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeFlowReport, doc.DocType)
	assert.Equal(t, "sale", doc.OwnerKind)

	info, err := os.Stat(filepath.Join(root, filepath.Base(doc.FilePath)))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	abs, name, err := svc.ResolveFile(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "flow_sale_100.pdf", name)
	assert.Equal(t, filepath.Join(root, name), abs)

	docs, err := svc.ListDocuments(ctx, "sale", 100)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = svc.GenerateFlowReport(ctx, admin, models.FlowKindSale, 4040)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateCommissionSettlement(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := svc.GenerateCommissionSettlement(ctx, admin, 7)
	require.NoError(t, err)
	assert.Equal(t, models.DocTypeCommissionSettlement, doc.DocType)
	assert.Equal(t, int64(7), doc.OwnerID)

	_, err = svc.GenerateCommissionSettlement(ctx, admin, 70)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.ResolveFile(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := svc.ListDocuments(ctx, "commission", 70)
	require.NoError(t, err)
	assert.NotNil(t, empty)
}
