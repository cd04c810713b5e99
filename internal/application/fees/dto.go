package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// GenerateBillInput is the input of BillService.GenerateBill
type GenerateBillInput struct {
	StudentID       uuid.UUID
	AcademicYearID  uuid.UUID
	FeeStructureIDs []uuid.UUID
	IssuedDate      *time.Time
	Actor           uuid.UUID
}

// RecordPaymentInput is the input of LedgerService.RecordPayment.
// StudentID is optional; when set it must match the bill's student.
type RecordPaymentInput struct {
	BillID      uuid.UUID
	StudentID   uuid.UUID
	PaymentDate time.Time
	Amount      decimal.Decimal
	Method      fees.PaymentMethod
	Reference   string
	ReceivedBy  uuid.UUID
	CreatedBy   uuid.UUID
}

// CreateFeeStructureInput is the input of CatalogService.CreateFeeStructure
type CreateFeeStructureInput struct {
	FeeCategoryID  uuid.UUID
	GradeID        uuid.UUID
	AcademicYearID uuid.UUID
	Amount         decimal.Decimal
	DueDate        *time.Time
	Actor          uuid.UUID
}

// money renders an amount as a fixed two-place decimal string
func money(d decimal.Decimal) string {
	return valueobject.FormatAmount(d)
}

// FeeStructureResponse represents a fee structure in API responses
type FeeStructureResponse struct {
	ID             uuid.UUID  `json:"id"`
	FeeCategoryID  uuid.UUID  `json:"fee_category_id"`
	GradeID        uuid.UUID  `json:"grade_id"`
	AcademicYearID uuid.UUID  `json:"academic_year_id"`
	Amount         string     `json:"amount"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// FeeStructureLineResponse is a catalog line with its category name
type FeeStructureLineResponse struct {
	FeeStructureResponse
	CategoryName string `json:"category_name"`
}

// ToFeeStructureResponse converts a domain FeeStructure
func ToFeeStructureResponse(fs *fees.FeeStructure) FeeStructureResponse {
	return FeeStructureResponse{
		ID:             fs.ID,
		FeeCategoryID:  fs.FeeCategoryID,
		GradeID:        fs.GradeID,
		AcademicYearID: fs.AcademicYearID,
		Amount:         money(fs.Amount),
		DueDate:        fs.DueDate,
		CreatedAt:      fs.CreatedAt,
	}
}

// ToFeeStructureLineResponses converts catalog lines
func ToFeeStructureLineResponses(lines []fees.FeeStructureLine) []FeeStructureLineResponse {
	out := make([]FeeStructureLineResponse, len(lines))
	for i := range lines {
		out[i] = FeeStructureLineResponse{
			FeeStructureResponse: ToFeeStructureResponse(&lines[i].FeeStructure),
			CategoryName:         lines[i].CategoryName,
		}
	}
	return out
}

// BillItemResponse represents a bill line in API responses
type BillItemResponse struct {
	ID             uuid.UUID `json:"id"`
	FeeStructureID uuid.UUID `json:"fee_structure_id"`
	FeeCategoryID  uuid.UUID `json:"fee_category_id"`
	Description    string    `json:"description"`
	Amount         string    `json:"amount"`
}

// BillResponse represents a bill in API responses
type BillResponse struct {
	ID             uuid.UUID          `json:"id"`
	BillNumber     string             `json:"bill_number"`
	StudentID      uuid.UUID          `json:"student_id"`
	AcademicYearID uuid.UUID          `json:"academic_year_id"`
	Items          []BillItemResponse `json:"items,omitempty"`
	TotalAmount    string             `json:"total_amount"`
	PaidAmount     string             `json:"paid_amount"`
	Balance        string             `json:"balance"`
	Status         string             `json:"status"`
	IssuedDate     time.Time          `json:"issued_date"`
	Version        int                `json:"version"`
	CreatedBy      uuid.UUID          `json:"created_by"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// ToBillResponse converts a domain Bill
func ToBillResponse(b *fees.Bill) BillResponse {
	resp := BillResponse{
		ID:             b.ID,
		BillNumber:     b.BillNumber,
		StudentID:      b.StudentID,
		AcademicYearID: b.AcademicYearID,
		TotalAmount:    money(b.TotalAmount),
		PaidAmount:     money(b.PaidAmount),
		Balance:        money(b.Balance),
		Status:         b.Status.String(),
		IssuedDate:     b.IssuedDate,
		Version:        b.Version,
		CreatedBy:      b.CreatedBy,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if len(b.Items) > 0 {
		resp.Items = make([]BillItemResponse, len(b.Items))
		for i, it := range b.Items {
			resp.Items[i] = BillItemResponse{
				ID:             it.ID,
				FeeStructureID: it.FeeStructureID,
				FeeCategoryID:  it.FeeCategoryID,
				Description:    it.Description,
				Amount:         money(it.Amount),
			}
		}
	}
	return resp
}

// ToBillResponses converts a slice of bills
func ToBillResponses(bills []fees.Bill) []BillResponse {
	out := make([]BillResponse, len(bills))
	for i := range bills {
		out[i] = ToBillResponse(&bills[i])
	}
	return out
}

// BillBalanceResponse is the bill state right after a payment commits
type BillBalanceResponse struct {
	ID          uuid.UUID `json:"id"`
	TotalAmount string    `json:"total_amount"`
	PaidAmount  string    `json:"paid_amount"`
	Balance     string    `json:"balance"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                   uuid.UUID            `json:"id"`
	BillID               uuid.UUID            `json:"bill_id"`
	StudentID            uuid.UUID            `json:"student_id"`
	PaymentDate          time.Time            `json:"payment_date"`
	Amount               string               `json:"amount"`
	Method               string               `json:"method"`
	TransactionReference string               `json:"transaction_reference"`
	ReceivedBy           uuid.UUID            `json:"received_by"`
	CreatedBy            uuid.UUID            `json:"created_by"`
	CreatedAt            time.Time            `json:"created_at"`
	Bill                 *BillBalanceResponse `json:"bill,omitempty"`
}

// ToPaymentResponse converts a domain Payment
func ToPaymentResponse(p *fees.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                   p.ID,
		BillID:               p.BillID,
		StudentID:            p.StudentID,
		PaymentDate:          p.PaymentDate,
		Amount:               money(p.AmountPaid),
		Method:               p.Method.String(),
		TransactionReference: p.TransactionReference,
		ReceivedBy:           p.ReceivedBy,
		CreatedBy:            p.CreatedBy,
		CreatedAt:            p.CreatedAt,
	}
}

// ToPaymentResponses converts a slice of payments
func ToPaymentResponses(payments []fees.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i := range payments {
		out[i] = ToPaymentResponse(&payments[i])
	}
	return out
}

// PaymentListItem is a payment row in listings
type PaymentListItem struct {
	PaymentResponse
	BillNumber       string `json:"bill_number"`
	StudentName      string `json:"student_name"`
	AdmissionNumber  string `json:"admission_number"`
	GradeName        string `json:"grade_name"`
	AcademicYearName string `json:"academic_year_name"`
	ReceiptNumber    string `json:"receipt_number,omitempty"`
}

// ToPaymentListItem converts a payment view
func ToPaymentListItem(v *fees.PaymentView) PaymentListItem {
	return PaymentListItem{
		PaymentResponse:  ToPaymentResponse(&v.Payment),
		BillNumber:       v.BillNumber,
		StudentName:      v.StudentName,
		AdmissionNumber:  v.AdmissionNumber,
		GradeName:        v.GradeName,
		AcademicYearName: v.AcademicYearName,
		ReceiptNumber:    v.ReceiptNumber,
	}
}

// ReceiptResponse represents a receipt in API responses
type ReceiptResponse struct {
	ID            uuid.UUID `json:"id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	ReceiptNumber string    `json:"receipt_number"`
	IssuedAt      time.Time `json:"issued_at"`
	GeneratedBy   uuid.UUID `json:"generated_by"`
}

// ToReceiptResponse converts a domain Receipt
func ToReceiptResponse(r *fees.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:            r.ID,
		PaymentID:     r.PaymentID,
		ReceiptNumber: r.ReceiptNumber,
		IssuedAt:      r.IssuedAt,
		GeneratedBy:   r.GeneratedBy,
	}
}

// ExportArchiveResponse describes an uploaded payment export
type ExportArchiveResponse struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Rows        int       `json:"rows"`
	ContentType string    `json:"content_type"`
}
