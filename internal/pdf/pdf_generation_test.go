package pdf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readHead(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(b), 4)
	return string(b[:4])
}

func TestGenerateFlowReportWithoutFont(t *testing.T) {
	dir := t.TempDir()
	g := NewDocumentGenerator(dir, filepath.Join(dir, "missing.ttf"))
	done := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rel, err := g.GenerateFlowReport(FlowReportData{
		Title:  "Reserva R-1024 · Torre Norte",
		FlowID: 12,
		Kind:   "sale",
		Status: "in_progress",
		Stages: []ReportStage{
			{Name: "Reserva", Completed: true, Tasks: []ReportTask{
				{Name: "Pago de reserva", Status: "completed", CompletedAt: &done, Comments: 2},
			}},
			{Name: "Promesa", Tasks: []ReportTask{
				{Name: "Firma promesa", Status: "in_progress", Assignees: []string{"Ana Muñoz"}},
			}},
			{Name: "Escritura"},
		},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "/flow_sale_12.pdf", rel)
	assert.Equal(t, "%PDF", readHead(t, filepath.Join(dir, "flow_sale_12.pdf")))
}

func TestGenerateCommissionSettlementStripsPath(t *testing.T) {
	dir := t.TempDir()
	g := NewDocumentGenerator(dir, "")
	flowID := int64(4)

	rel, err := g.GenerateCommissionSettlement(SettlementData{
		CommissionID:  7,
		Reservation:   "R-1024",
		BrokerName:    "Corredora Sur",
		Amount:        "1250000.00",
		Currency:      "CLP",
		IsPenalized:   true,
		PenaltyReason: "Documentación incompleta",
		PaymentFlow:   &flowID,
		CreatedAt:     time.Now(),
		Filename:      "../../etc/settlement.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "/settlement.pdf", rel)
	assert.Equal(t, "%PDF", readHead(t, filepath.Join(dir, "settlement.pdf")))
}
