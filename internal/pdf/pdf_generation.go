package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Generator: интерфейс (удобно мокать в тестах)
type Generator interface {
	GenerateFlowReport(data FlowReportData) (string, error)
	GenerateCommissionSettlement(data SettlementData) (string, error)
}

// DocumentGenerator: реализация
type DocumentGenerator struct {
	RootDir  string // корень хранения, например "./files"
	FontPath string // путь до TTF, например "assets/fonts/DejaVuSans.ttf"
	fontName string // внутреннее имя шрифта в PDF
}

type ReportTask struct {
	Name        string
	Status      string
	CompletedAt *time.Time
	Assignees   []string
	Comments    int
}

type ReportStage struct {
	Name      string
	Completed bool
	Tasks     []ReportTask
}

type FlowReportData struct {
	Title     string // "Reserva R-1024" / "Comisión #7"
	FlowID    int64
	Kind      string
	Status    string
	StartedAt *time.Time
	Stages    []ReportStage
	CreatedAt time.Time
	Filename  string // имя файла (без путей); если пусто: сгенерируем
}

type SettlementData struct {
	CommissionID  int64
	Reservation   string
	BrokerName    string
	Amount        string
	Currency      string
	IsPenalized   bool
	PenaltyReason string
	PaymentFlow   *int64
	CreatedAt     time.Time
	Filename      string
}

func NewDocumentGenerator(rootDir, fontPath string) *DocumentGenerator {
	return &DocumentGenerator{
		RootDir:  filepath.Clean(rootDir),
		FontPath: fontPath,
		fontName: "DejaVu",
	}
}

// page: документ вместе с переводчиком строк для выбранного шрифта.
type page struct {
	*gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (g *DocumentGenerator) newPage(title string) *page {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Inver back office", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	p := &page{Fpdf: pdf, font: g.fontName, tr: func(s string) string { return s }}
	if _, err := os.Stat(g.FontPath); err == nil {
		// AddUTF8Font принимает путь до TTF
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	} else {
		// без TTF: встроенный Helvetica в cp1252 (испанский алфавит покрыт)
		p.font = "Helvetica"
		p.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(p.font, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return p
}

func (g *DocumentGenerator) GenerateFlowReport(data FlowReportData) (string, error) {
	filename := data.Filename
	if filename == "" {
		filename = fmt.Sprintf("flow_%s_%d.pdf", data.Kind, data.FlowID)
	}
	absPath, err := g.ensureTarget(filename)
	if err != nil {
		return "", err
	}

	p := g.newPage(data.Title)

	// ===== Заголовок
	p.SetFont(p.font, "B", 16)
	p.CellFormat(0, 10, p.tr("Avance del flujo"), "", 1, "C", false, 0, "")
	p.SetFont(p.font, "", 11)
	p.CellFormat(0, 7, p.tr(data.Title), "", 1, "C", false, 0, "")
	hr(p)

	kvLine(p, "Flujo", fmt.Sprintf("#%d (%s)", data.FlowID, data.Kind))
	kvLine(p, "Estado", data.Status)
	kvLine(p, "Inicio", fmtDate(data.StartedAt))
	kvLine(p, "Emitido", data.CreatedAt.Format("02.01.2006 15:04"))
	hr(p)

	// ===== Этапы
	for _, st := range data.Stages {
		mark := "pendiente"
		if st.Completed {
			mark = "completada"
		}
		sectionTitle(p, fmt.Sprintf("%s (%s)", st.Name, mark))
		if len(st.Tasks) == 0 {
			p.CellFormat(0, 6, p.tr("Sin tareas"), "", 1, "L", false, 0, "")
		}
		for _, t := range st.Tasks {
			line := fmt.Sprintf("- %s: %s", t.Name, t.Status)
			if t.CompletedAt != nil {
				line += ", " + t.CompletedAt.Format("02.01.2006")
			}
			if len(t.Assignees) > 0 {
				line += fmt.Sprintf(" [%s]", joinNames(t.Assignees))
			}
			if t.Comments > 0 {
				line += fmt.Sprintf(" (%d comentarios)", t.Comments)
			}
			p.MultiCell(0, 6, p.tr(line), "", "L", false)
		}
		p.Ln(2)
	}

	if err := p.OutputFileAndClose(absPath); err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(filepath.Base(absPath)), nil
}

func (g *DocumentGenerator) GenerateCommissionSettlement(data SettlementData) (string, error) {
	filename := data.Filename
	if filename == "" {
		filename = fmt.Sprintf("commission_%d.pdf", data.CommissionID)
	}
	absPath, err := g.ensureTarget(filename)
	if err != nil {
		return "", err
	}

	p := g.newPage(fmt.Sprintf("Liquidación comisión #%d", data.CommissionID))

	p.SetFont(p.font, "B", 16)
	p.CellFormat(0, 10, p.tr("LIQUIDACIÓN DE COMISIÓN"), "", 1, "C", false, 0, "")
	p.SetFont(p.font, "", 11)
	p.CellFormat(0, 7, fmt.Sprintf("No. %06d  -  %s", data.CommissionID, data.CreatedAt.Format("02.01.2006")), "", 1, "C", false, 0, "")
	hr(p)

	sectionTitle(p, "Datos")
	kvLine(p, "Reserva", data.Reservation)
	kvLine(p, "Broker", data.BrokerName)
	kvLine(p, "Monto", fmt.Sprintf("%s %s", data.Amount, data.Currency))
	if data.PaymentFlow != nil {
		kvLine(p, "Flujo de pago", fmt.Sprintf("#%d", *data.PaymentFlow))
	}
	hr(p)

	if data.IsPenalized {
		sectionTitle(p, "Penalización")
		p.MultiCell(0, 6, p.tr(data.PenaltyReason), "", "L", false)
		hr(p)
	}

	// ===== Подписи
	sectionTitle(p, "Firmas")
	p.Ln(10)
	y := p.GetY()
	p.SetLineWidth(0.3)
	p.Line(20, y, 90, y)
	p.Line(120, y, 190, y)
	p.SetY(y + 2)
	p.CellFormat(100, 5, p.tr("Finanzas"), "", 0, "L", false, 0, "")
	p.CellFormat(0, 5, p.tr("Broker"), "", 1, "L", false, 0, "")

	if err := p.OutputFileAndClose(absPath); err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(filepath.Base(absPath)), nil
}

// ===== helpers =====

func sectionTitle(p *page, s string) {
	p.SetFont(p.font, "B", 12)
	p.CellFormat(0, 7, p.tr(s), "", 1, "L", false, 0, "")
	p.SetFont(p.font, "", 11)
}

func kvLine(p *page, key, val string) {
	p.SetFont(p.font, "B", 11)
	p.CellFormat(45, 6, p.tr(key+":"), "", 0, "L", false, 0, "")
	p.SetFont(p.font, "", 11)
	p.CellFormat(0, 6, p.tr(val), "", 1, "L", false, 0, "")
}

func hr(p *page) {
	y := p.GetY() + 1.5
	p.SetLineWidth(0.2)
	p.Line(20, y, 190, y)
	p.SetY(y + 2)
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("02.01.2006")
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func (g *DocumentGenerator) ensureTarget(filename string) (string, error) {
	if err := os.MkdirAll(g.RootDir, 0o755); err != nil {
		return "", fmt.Errorf("create files dir: %w", err)
	}
	filename = filepath.Base(filename) // безопасность
	return filepath.Join(g.RootDir, filename), nil
}
