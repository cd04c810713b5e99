package printing

import (
	"context"
	"html/template"
	"time"

	feesapp "github.com/school/feeledger/internal/application/fees"
	"go.uber.org/zap"
)

// Ensure ReceiptPDFRenderer implements ReceiptRenderer
var _ feesapp.ReceiptRenderer = (*ReceiptPDFRenderer)(nil)

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Receipt {{.ReceiptNumber}}</title>
<style>
  body { font-family: "DejaVu Sans", Arial, sans-serif; font-size: 11pt; color: #222; }
  header { text-align: center; border-bottom: 2px solid #222; padding-bottom: 6px; margin-bottom: 12px; }
  header h1 { margin: 0; font-size: 16pt; }
  header p { margin: 2px 0; font-size: 9pt; }
  h2 { font-size: 13pt; margin: 0 0 8px; }
  table { width: 100%; border-collapse: collapse; margin-bottom: 10px; }
  td { padding: 3px 4px; vertical-align: top; }
  td.label { width: 40%; color: #555; }
  .amount { font-size: 14pt; font-weight: bold; }
  .summary td { border-top: 1px solid #ccc; }
  footer { margin-top: 18px; font-size: 8pt; color: #777; text-align: center; }
</style>
</head>
<body>
<header>
  <h1>{{.SchoolName}}</h1>
  {{with .SchoolAddress}}<p>{{.}}</p>{{end}}
</header>
<h2>Payment Receipt</h2>
<table>
  <tr><td class="label">Receipt No.</td><td>{{.ReceiptNumber}}</td></tr>
  <tr><td class="label">Issued</td><td>{{dateTime .IssuedAt}}</td></tr>
  <tr><td class="label">Payment date</td><td>{{date .PaymentDate}}</td></tr>
</table>
<table>
  <tr><td class="label">Student</td><td>{{.StudentName}}</td></tr>
  <tr><td class="label">Admission No.</td><td>{{.AdmissionNumber}}</td></tr>
  <tr><td class="label">Grade</td><td>{{.GradeName}}</td></tr>
  <tr><td class="label">Academic year</td><td>{{.AcademicYearName}}</td></tr>
  <tr><td class="label">Bill No.</td><td>{{.BillNumber}}</td></tr>
</table>
<table>
  <tr><td class="label">Amount received</td><td class="amount">{{.Currency}} {{money .Amount}}</td></tr>
  <tr><td class="label">Method</td><td>{{.Method}}</td></tr>
  <tr><td class="label">Reference</td><td>{{.Reference}}</td></tr>
</table>
<table class="summary">
  <tr><td class="label">Bill total</td><td>{{.Currency}} {{money .BillTotal}}</td></tr>
  <tr><td class="label">Paid to date</td><td>{{.Currency}} {{money .BillPaid}}</td></tr>
  <tr><td class="label">Balance</td><td>{{.Currency}} {{money .BillBalance}}</td></tr>
  <tr><td class="label">Status</td><td>{{title (printf "%s" .BillStatus)}}</td></tr>
</table>
<footer>This receipt was generated electronically and is valid without a signature.</footer>
</body>
</html>`

// ReceiptPDFRenderer renders receipt documents to PDF through a PDFRenderer
type ReceiptPDFRenderer struct {
	pdf     PDFRenderer
	engine  *TemplateEngine
	tmpl    *template.Template
	paper   PaperSize
	timeout time.Duration
	logger  *zap.Logger
}

// ReceiptOption configures a ReceiptPDFRenderer
type ReceiptOption func(*receiptOptions)

type receiptOptions struct {
	locale  string
	paper   PaperSize
	timeout time.Duration
	logger  *zap.Logger
}

// WithLocale sets the locale used for number formatting
func WithLocale(locale string) ReceiptOption {
	return func(o *receiptOptions) { o.locale = locale }
}

// WithPaper sets the page size, A5 by default
func WithPaper(p PaperSize) ReceiptOption {
	return func(o *receiptOptions) { o.paper = p }
}

// WithRenderTimeout bounds each render
func WithRenderTimeout(d time.Duration) ReceiptOption {
	return func(o *receiptOptions) { o.timeout = d }
}

// WithReceiptLogger sets the logger
func WithReceiptLogger(l *zap.Logger) ReceiptOption {
	return func(o *receiptOptions) { o.logger = l }
}

// NewReceiptPDFRenderer creates a receipt renderer on top of pdf
func NewReceiptPDFRenderer(pdf PDFRenderer, opts ...ReceiptOption) (*ReceiptPDFRenderer, error) {
	o := receiptOptions{locale: "en", paper: PaperA5, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	engine := NewTemplateEngine(o.locale)
	tmpl, err := engine.Parse("receipt", receiptTemplate)
	if err != nil {
		return nil, err
	}
	return &ReceiptPDFRenderer{
		pdf:     pdf,
		engine:  engine,
		tmpl:    tmpl,
		paper:   o.paper,
		timeout: o.timeout,
		logger:  o.logger,
	}, nil
}

// RenderHTML fills the receipt template
func (r *ReceiptPDFRenderer) RenderHTML(doc feesapp.ReceiptDocument) (string, error) {
	return r.engine.Execute(r.tmpl, doc)
}

// RenderReceipt renders the receipt as a PDF
func (r *ReceiptPDFRenderer) RenderReceipt(ctx context.Context, doc feesapp.ReceiptDocument) ([]byte, error) {
	html, err := r.RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	result, err := r.pdf.Render(ctx, &RenderRequest{
		HTML:    html,
		Title:   "Receipt " + doc.ReceiptNumber,
		Paper:   r.paper,
		Margins: DefaultMargins(),
		Timeout: r.timeout,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Receipt PDF rendered",
		zap.String("receipt_number", doc.ReceiptNumber),
		zap.Int("bytes", len(result.PDFData)),
		zap.Duration("duration", result.RenderDuration),
	)
	return result.PDFData, nil
}
