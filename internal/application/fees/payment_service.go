package fees

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrArchiveUnavailable is returned when no object storage is configured
var ErrArchiveUnavailable = errors.New("export archive storage is not configured")

// ExportArchiver stores finished exports and hands out download links
type ExportArchiver interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// ExportHeader is the column row of the payment CSV export
var ExportHeader = []string{
	"Payment Date",
	"Receipt Number",
	"Student",
	"Admission Number",
	"Grade",
	"Academic Year",
	"Bill Number",
	"Amount",
	"Method",
	"Reference",
}

const csvContentType = "text/csv"

// PaymentService serves payment reads, listings and exports
type PaymentService struct {
	deps
	payments fees.PaymentRepository
	bills    fees.BillRepository
	archiver ExportArchiver
	prefix   string
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(payments fees.PaymentRepository, bills fees.BillRepository, opts ...Option) *PaymentService {
	return &PaymentService{
		deps:     newDeps(opts),
		payments: payments,
		bills:    bills,
	}
}

// SetArchiver enables ArchiveExport. Keys are created under prefix.
func (s *PaymentService) SetArchiver(a ExportArchiver, prefix string) {
	s.archiver = a
	s.prefix = strings.Trim(prefix, "/")
}

// GetPayment returns a payment by ID
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	p, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(p)
	return &resp, nil
}

// ListBillPayments returns a bill's payments in payment order
func (s *PaymentService) ListBillPayments(ctx context.Context, billID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.bills.FindByID(ctx, billID); err != nil {
		return nil, err
	}
	payments, err := s.payments.FindByBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	return ToPaymentResponses(payments), nil
}

// ListPayments returns a filtered page of payments
func (s *PaymentService) ListPayments(ctx context.Context, filter fees.PaymentFilter) (shared.Paginated[PaymentListItem], error) {
	if err := validatePaymentFilter(filter); err != nil {
		return shared.Paginated[PaymentListItem]{}, err
	}
	filter.Normalize()

	views, total, err := s.payments.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[PaymentListItem]{}, fmt.Errorf("failed to list payments: %w", err)
	}
	items := make([]PaymentListItem, len(views))
	for i := range views {
		items[i] = ToPaymentListItem(&views[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// ExportPayments writes every payment matching filter to w as CSV, ignoring
// paging, and returns the number of data rows written
func (s *PaymentService) ExportPayments(ctx context.Context, filter fees.PaymentFilter, w io.Writer) (int, error) {
	if err := validatePaymentFilter(filter); err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("failed to write export header: %w", err)
	}

	rows := 0
	err := s.payments.Each(ctx, filter, func(v fees.PaymentView) error {
		rows++
		return cw.Write(exportRecord(&v))
	})
	if err != nil {
		return rows, fmt.Errorf("failed to export payments: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("failed to flush export: %w", err)
	}
	return rows, nil
}

// ArchiveExport renders the CSV export, uploads it to object storage and
// returns a presigned download link
func (s *PaymentService) ArchiveExport(ctx context.Context, filter fees.PaymentFilter, actor uuid.UUID) (*ExportArchiveResponse, error) {
	if s.archiver == nil {
		return nil, ErrArchiveUnavailable
	}

	var buf bytes.Buffer
	rows, err := s.ExportPayments(ctx, filter, &buf)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := fmt.Sprintf("payments-%s-%s.csv", now.Format("20060102-150405"), uuid.NewString()[:8])
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	if err := s.archiver.Upload(ctx, key, buf.Bytes(), csvContentType); err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}
	url, expiresAt, err := s.archiver.GenerateDownloadURL(ctx, key, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to sign export URL: %w", err)
	}

	s.logger.Info("Payment export archived",
		zap.String("key", key),
		zap.Int("rows", rows),
		zap.Int("bytes", buf.Len()),
		zap.String("actor", actor.String()),
	)
	return &ExportArchiveResponse{
		Key:         key,
		URL:         url,
		ExpiresAt:   expiresAt,
		Rows:        rows,
		ContentType: csvContentType,
	}, nil
}

func exportRecord(v *fees.PaymentView) []string {
	return []string{
		v.PaymentDate.Format(time.DateOnly),
		textCell(v.ReceiptNumber),
		textCell(v.StudentName),
		textCell(v.AdmissionNumber),
		textCell(v.GradeName),
		textCell(v.AcademicYearName),
		textCell(v.BillNumber),
		money(v.AmountPaid),
		v.Method.String(),
		textCell(v.TransactionReference),
	}
}

// textCell quotes free text that a spreadsheet would evaluate as a formula
func textCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func validatePaymentFilter(f fees.PaymentFilter) error {
	verr := &fees.ValidationError{}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		verr.Add("date_from", "must not be after date_to")
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		verr.Add("min_amount", "must not exceed max_amount")
	}
	if f.Method != nil && !f.Method.IsValid() {
		verr.Add("method", "must be one of Cash, Bank, Mobile Money")
	}
	return verr.OrNil()
}
