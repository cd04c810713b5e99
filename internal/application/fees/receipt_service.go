package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRenderingUnavailable is returned when no PDF renderer is configured
var ErrRenderingUnavailable = errors.New("receipt rendering is not configured")

// ReceiptDocument carries everything printed on a receipt
type ReceiptDocument struct {
	SchoolName       string
	SchoolAddress    string
	Currency         string
	ReceiptNumber    string
	IssuedAt         time.Time
	PaymentDate      time.Time
	StudentName      string
	AdmissionNumber  string
	GradeName        string
	AcademicYearName string
	BillNumber       string
	Amount           decimal.Decimal
	Method           fees.PaymentMethod
	Reference        string
	BillTotal        decimal.Decimal
	BillPaid         decimal.Decimal
	BillBalance      decimal.Decimal
	BillStatus       fees.BillStatus
}

// ReceiptRenderer turns a receipt document into a PDF
type ReceiptRenderer interface {
	RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error)
}

// ReceiptService issues and reads payment receipts
type ReceiptService struct {
	deps
	receipts fees.ReceiptRepository
	payments fees.PaymentRepository
	bills    fees.BillRepository
	renderer ReceiptRenderer
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	receipts fees.ReceiptRepository,
	payments fees.PaymentRepository,
	bills fees.BillRepository,
	opts ...Option,
) *ReceiptService {
	return &ReceiptService{
		deps:     newDeps(opts),
		receipts: receipts,
		payments: payments,
		bills:    bills,
	}
}

// SetRenderer enables RenderReceiptPDF
func (s *ReceiptService) SetRenderer(r ReceiptRenderer) {
	s.renderer = r
}

// IssueReceipt issues the single receipt of a payment. A payment that
// already has one yields a DuplicateReceiptError.
func (s *ReceiptService) IssueReceipt(ctx context.Context, paymentID, generatedBy uuid.UUID) (*ReceiptResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receipt", "issue",
		telemetry.AttrPaymentID, paymentID.String(),
	)
	defer span.End()

	var (
		receipt *fees.Receipt
		err     error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerLabels("issue_receipt"), func(c context.Context) {
		receipt, err = s.issue(c, paymentID, generatedBy)
	})
	if err != nil {
		var dup *fees.DuplicateReceiptError
		if errors.As(err, &dup) && dup.Exhausted {
			s.metrics.RetryableFailure(ctx, "issue_receipt")
			s.logger.Error("Receipt number allocation exhausted",
				zap.String("payment_id", paymentID.String()),
				zap.Int("attempts", dup.Attempts),
			)
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.AttrReceiptID, receipt.ID.String(),
		telemetry.AttrReceiptNumber, receipt.ReceiptNumber,
	)
	s.metrics.ReceiptIssued(ctx)
	s.logger.Info("Receipt issued",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("payment_id", paymentID.String()),
	)

	resp := ToReceiptResponse(receipt)
	return &resp, nil
}

func (s *ReceiptService) issue(ctx context.Context, paymentID, generatedBy uuid.UUID) (*fees.Receipt, error) {
	if generatedBy == uuid.Nil {
		return nil, fees.NewValidationError("generated_by", "acting user is required")
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.receipts.FindByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		return nil, &fees.DuplicateReceiptError{PaymentID: paymentID, ReceiptNumber: existing.ReceiptNumber}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	span := telemetry.SpanFromContext(ctx)
	attempts := s.settings.ReceiptMaxAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		seq, err := s.receipts.NextReceiptSequence(ctx)
		if err != nil {
			return nil, err
		}
		receipt, err := fees.NewReceipt(payment, fees.FormatReceiptNumber(s.now(), seq), generatedBy)
		if err != nil {
			return nil, err
		}

		err = s.receipts.Create(ctx, receipt, fees.NewReceiptIssuedEvent(receipt, payment))
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, fees.ErrReceiptNumberTaken):
			s.metrics.ReceiptNumberCollision(ctx)
			telemetry.AddEvent(span, "receipt_number_collision",
				telemetry.AttrAttempt, attempt,
				telemetry.AttrReceiptNumber, receipt.ReceiptNumber,
			)
			s.logger.Warn("Receipt number collision, allocating again",
				zap.String("receipt_number", receipt.ReceiptNumber),
				zap.Int("attempt", attempt),
			)
		case errors.Is(err, fees.ErrPaymentAlreadyReceipted):
			return nil, &fees.DuplicateReceiptError{PaymentID: paymentID}
		default:
			return nil, err
		}
	}
	return nil, &fees.DuplicateReceiptError{PaymentID: paymentID, Exhausted: true, Attempts: attempts}
}

// GetReceipt returns a receipt by ID
func (s *ReceiptService) GetReceipt(ctx context.Context, id uuid.UUID) (*ReceiptResponse, error) {
	r, err := s.receipts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToReceiptResponse(r)
	return &resp, nil
}

// GetReceiptByPayment returns the receipt issued for a payment
func (s *ReceiptService) GetReceiptByPayment(ctx context.Context, paymentID uuid.UUID) (*ReceiptResponse, error) {
	r, err := s.receipts.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	resp := ToReceiptResponse(r)
	return &resp, nil
}

// ReceiptDocument assembles the printable content of a receipt
func (s *ReceiptService) ReceiptDocument(ctx context.Context, receiptID uuid.UUID) (*ReceiptDocument, error) {
	receipt, err := s.receipts.FindByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	view, err := s.payments.FindViewByID(ctx, receipt.PaymentID)
	if err != nil {
		return nil, err
	}
	bill, err := s.bills.FindByID(ctx, view.BillID)
	if err != nil {
		return nil, err
	}

	return &ReceiptDocument{
		SchoolName:       s.settings.SchoolName,
		SchoolAddress:    s.settings.SchoolAddress,
		Currency:         s.settings.Currency,
		ReceiptNumber:    receipt.ReceiptNumber,
		IssuedAt:         receipt.IssuedAt,
		PaymentDate:      view.PaymentDate,
		StudentName:      view.StudentName,
		AdmissionNumber:  view.AdmissionNumber,
		GradeName:        view.GradeName,
		AcademicYearName: view.AcademicYearName,
		BillNumber:       view.BillNumber,
		Amount:           view.AmountPaid,
		Method:           view.Method,
		Reference:        view.TransactionReference,
		BillTotal:        bill.TotalAmount,
		BillPaid:         bill.PaidAmount,
		BillBalance:      bill.Balance,
		BillStatus:       bill.Status,
	}, nil
}

// RenderReceiptPDF renders a receipt as PDF and returns it with a file name
func (s *ReceiptService) RenderReceiptPDF(ctx context.Context, receiptID uuid.UUID) ([]byte, string, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receipt", "render_pdf",
		telemetry.AttrReceiptID, receiptID.String(),
	)
	defer span.End()

	if s.renderer == nil {
		telemetry.RecordError(span, ErrRenderingUnavailable)
		return nil, "", ErrRenderingUnavailable
	}
	doc, err := s.ReceiptDocument(ctx, receiptID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, "", err
	}
	pdf, err := s.renderer.RenderReceipt(ctx, *doc)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, "", fmt.Errorf("failed to render receipt %s: %w", doc.ReceiptNumber, err)
	}
	return pdf, doc.ReceiptNumber + ".pdf", nil
}
