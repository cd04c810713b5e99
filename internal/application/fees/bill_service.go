package fees

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// BillService generates and reads student bills
type BillService struct {
	deps
	refs       fees.ReferenceRepository
	structures fees.FeeStructureRepository
	bills      fees.BillRepository
}

// NewBillService creates a new BillService
func NewBillService(
	refs fees.ReferenceRepository,
	structures fees.FeeStructureRepository,
	bills fees.BillRepository,
	opts ...Option,
) *BillService {
	return &BillService{
		deps:       newDeps(opts),
		refs:       refs,
		structures: structures,
		bills:      bills,
	}
}

// GenerateBill creates one bill for a student and academic year from the
// selected catalog lines. The catalog is not modified.
func (s *BillService) GenerateBill(ctx context.Context, in GenerateBillInput) (*BillResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "generate",
		telemetry.AttrStudentID, in.StudentID.String(),
	)
	defer span.End()

	var (
		bill *fees.Bill
		err  error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerLabels("generate_bill"), func(c context.Context) {
		bill, err = s.generate(c, in)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.AttrBillID, bill.ID.String(),
		telemetry.AttrAmount, money(bill.TotalAmount),
	)
	s.metrics.BillGenerated(ctx)
	s.logger.Info("Bill generated",
		zap.String("bill_id", bill.ID.String()),
		zap.String("bill_number", bill.BillNumber),
		zap.String("student_id", bill.StudentID.String()),
		zap.String("academic_year_id", bill.AcademicYearID.String()),
		zap.Int("items", len(bill.Items)),
		zap.String("total", money(bill.TotalAmount)),
	)

	resp := ToBillResponse(bill)
	return &resp, nil
}

func (s *BillService) generate(ctx context.Context, in GenerateBillInput) (*fees.Bill, error) {
	verr := &fees.ValidationError{}
	if in.StudentID == uuid.Nil {
		verr.Add("student_id", "is required")
	}
	if in.AcademicYearID == uuid.Nil {
		verr.Add("academic_year_id", "is required")
	}
	if in.Actor == uuid.Nil {
		verr.Add("created_by", "acting user is required")
	}
	ids := uniqueIDs(in.FeeStructureIDs)
	if len(ids) == 0 {
		verr.Add("fee_structure_ids", "at least one fee structure must be selected")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	student, err := s.refs.FindStudent(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	year, err := s.refs.FindAcademicYear(ctx, in.AcademicYearID)
	if err != nil {
		return nil, err
	}

	found, err := s.structures.FindLinesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee structures: %w", err)
	}
	byID := make(map[uuid.UUID]fees.FeeStructureLine, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	lines := make([]fees.FeeStructureLine, 0, len(ids))
	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			verr.Add("fee_structure_ids", fmt.Sprintf("fee structure %s does not exist", id))
			continue
		}
		lines = append(lines, l)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	issued := s.now()
	if in.IssuedDate != nil && !in.IssuedDate.IsZero() {
		issued = *in.IssuedDate
	}

	attempts := s.settings.BillNumberAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		bill, err := fees.NewBill(student, year, lines, issued, in.Actor)
		if err != nil {
			return nil, err
		}
		err = s.bills.Create(ctx, bill)
		if err == nil {
			return bill, nil
		}
		if !errors.Is(err, fees.ErrBillNumberTaken) {
			return nil, err
		}
		s.logger.Warn("Bill number collision, regenerating",
			zap.String("bill_number", bill.BillNumber),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fees.NewRetryableError("allocate bill number", fees.ErrBillNumberTaken)
}

// GetBill returns a bill with its items
func (s *BillService) GetBill(ctx context.Context, id uuid.UUID) (*BillResponse, error) {
	bill, err := s.bills.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToBillResponse(bill)
	return &resp, nil
}

// ListBills returns a page of bills
func (s *BillService) ListBills(ctx context.Context, filter fees.BillFilter) (shared.Paginated[BillResponse], error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return shared.Paginated[BillResponse]{}, fees.NewValidationError("status", "must be one of unpaid, partial, paid")
	}
	filter.Normalize()

	bills, total, err := s.bills.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[BillResponse]{}, fmt.Errorf("failed to list bills: %w", err)
	}
	return shared.NewPaginated(ToBillResponses(bills), total, filter.Page, filter.PageSize), nil
}

// uniqueIDs drops nil and repeated ids, keeping first-seen order
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
