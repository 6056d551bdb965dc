package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"inverapp/internal/models"
	"inverapp/internal/pdf"
	"inverapp/internal/repositories"
)

type DocumentService struct {
	DocRepo      repositories.DocumentRepository
	Workflow     WorkflowService
	Flows        repositories.FlowRepository
	Reservations repositories.ReservationRepository
	Commissions  repositories.CommissionRepository
	Users        repositories.UserRepository

	FilesRoot string        // корень хранения файлов (cfg.Files.RootDir)
	PDFGen    pdf.Generator // генератор PDF (internal/pdf)
	now       func() time.Time
}

func NewDocumentService(
	docRepo repositories.DocumentRepository,
	workflow WorkflowService,
	flows repositories.FlowRepository,
	reservations repositories.ReservationRepository,
	commissions repositories.CommissionRepository,
	users repositories.UserRepository,
	filesRoot string,
	pdfGen pdf.Generator,
) *DocumentService {
	return &DocumentService{
		DocRepo:      docRepo,
		Workflow:     workflow,
		Flows:        flows,
		Reservations: reservations,
		Commissions:  commissions,
		Users:        users,
		FilesRoot:    filesRoot,
		PDFGen:       pdfGen,
		now:          time.Now,
	}
}

// GenerateFlowReport строит PDF с текущим состоянием этапов и задач flow.
func (s *DocumentService) GenerateFlowReport(ctx context.Context, actor Actor, kind models.FlowKind, flowID int64) (*models.Document, error) {
	detail, err := s.Workflow.GetFlowDetail(ctx, kind, flowID)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Flujo #%d", flowID)
	switch kind {
	case models.FlowKindSale:
		if r, err := s.Reservations.GetByID(ctx, detail.Flow.OwnerID); err == nil && r != nil {
			title = fmt.Sprintf("Reserva %s · %s", r.ReservationNumber, r.ProjectName)
		}
	case models.FlowKindPayment:
		title = fmt.Sprintf("Comisión #%d", detail.Flow.OwnerID)
	}

	names := map[int64]string{}
	data := pdf.FlowReportData{
		Title:     title,
		FlowID:    flowID,
		Kind:      string(kind),
		Status:    string(detail.Flow.Status),
		StartedAt: detail.Flow.StartedAt,
		CreatedAt: s.now(),
	}
	for _, st := range detail.Stages {
		rs := pdf.ReportStage{Name: st.Stage.Name, Completed: st.IsCompleted}
		for _, tv := range st.Tasks {
			rt := pdf.ReportTask{Name: tv.Task.Name, Status: string(tv.Status()), Comments: tv.CommentCount}
			if tv.Instance != nil {
				rt.CompletedAt = tv.Instance.CompletedAt
			}
			for _, a := range tv.Assignees {
				rt.Assignees = append(rt.Assignees, s.userName(ctx, names, a.UserID))
			}
			rs.Tasks = append(rs.Tasks, rt)
		}
		data.Stages = append(data.Stages, rs)
	}

	rel, err := s.PDFGen.GenerateFlowReport(data)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		DocType:   models.DocTypeFlowReport,
		OwnerKind: string(kind),
		OwnerID:   flowID,
		FilePath:  rel,
		CreatedBy: actor.UserID,
	}
	if err := s.DocRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) GenerateCommissionSettlement(ctx context.Context, actor Actor, commissionID int64) (*models.Document, error) {
	bc, err := s.Commissions.GetByID(ctx, commissionID)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, fmt.Errorf("commission %d: %w", commissionID, ErrNotFound)
	}
	data := pdf.SettlementData{
		CommissionID:  bc.ID,
		Reservation:   fmt.Sprintf("#%d", bc.ReservationID),
		BrokerName:    bc.BrokerName,
		Amount:        bc.Amount,
		Currency:      bc.Currency,
		IsPenalized:   bc.IsPenalized,
		PenaltyReason: bc.PenaltyReason,
		CreatedAt:     s.now(),
	}
	if r, err := s.Reservations.GetByID(ctx, bc.ReservationID); err == nil && r != nil {
		data.Reservation = r.ReservationNumber
	}
	if f, err := s.Flows.FindActivePaymentFlow(ctx, bc.ID); err == nil && f != nil {
		data.PaymentFlow = &f.ID
	}

	rel, err := s.PDFGen.GenerateCommissionSettlement(data)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		DocType:   models.DocTypeCommissionSettlement,
		OwnerKind: "commission",
		OwnerID:   bc.ID,
		FilePath:  rel,
		CreatedBy: actor.UserID,
	}
	if err := s.DocRepo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.DocRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, ownerKind string, ownerID int64) ([]models.Document, error) {
	docs, err := s.DocRepo.ListByOwner(ctx, ownerKind, ownerID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// ResolveFile возвращает абсолютный путь файла, не выходя за FilesRoot.
func (s *DocumentService) ResolveFile(ctx context.Context, id int64) (absPath, fileName string, err error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return "", "", err
	}
	root, err := filepath.Abs(s.FilesRoot)
	if err != nil {
		return "", "", err
	}
	name := filepath.Base(strings.TrimPrefix(doc.FilePath, "/"))
	abs := filepath.Join(root, name)
	if !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("%w: bad file path", ErrValidation)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", "", fmt.Errorf("file for document %d: %w", id, ErrNotFound)
	}
	return abs, name, nil
}

func (s *DocumentService) userName(ctx context.Context, cache map[int64]string, id int64) string {
	if n, ok := cache[id]; ok {
		return n
	}
	n := fmt.Sprintf("#%d", id)
	if u, err := s.Users.GetByID(ctx, id); err == nil && u != nil {
		n = u.FullName()
	}
	cache[id] = n
	return n
}
