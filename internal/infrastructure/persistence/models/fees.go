package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/shopspring/decimal"
)

// FeeStructureModel is the persistence model for the fee structure catalog
type FeeStructureModel struct {
	BaseModel
	FeeCategoryID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structure_scope,priority:1"`
	GradeID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structure_scope,priority:2"`
	AcademicYearID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_fee_structure_scope,priority:3"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DueDate        *time.Time      `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (FeeStructureModel) TableName() string {
	return "fee_structures"
}

// ToDomain converts the persistence model to a domain FeeStructure
func (m *FeeStructureModel) ToDomain() *fees.FeeStructure {
	return &fees.FeeStructure{
		BaseEntity:     m.BaseModel.ToDomain(),
		FeeCategoryID:  m.FeeCategoryID,
		GradeID:        m.GradeID,
		AcademicYearID: m.AcademicYearID,
		Amount:         m.Amount,
		DueDate:        m.DueDate,
	}
}

// FeeStructureModelFromDomain creates a new persistence model from a domain FeeStructure
func FeeStructureModelFromDomain(fs *fees.FeeStructure) *FeeStructureModel {
	m := &FeeStructureModel{
		FeeCategoryID:  fs.FeeCategoryID,
		GradeID:        fs.GradeID,
		AcademicYearID: fs.AcademicYearID,
		Amount:         fs.Amount,
		DueDate:        fs.DueDate,
	}
	m.FromDomainBaseEntity(fs.BaseEntity)
	return m
}

// FeeStructureLineRow is the scan target for catalog lines joined with their category
type FeeStructureLineRow struct {
	FeeStructureModel
	CategoryName string
}

// ToDomain converts the row to a domain FeeStructureLine
func (r *FeeStructureLineRow) ToDomain() fees.FeeStructureLine {
	return fees.FeeStructureLine{
		FeeStructure: *r.FeeStructureModel.ToDomain(),
		CategoryName: r.CategoryName,
	}
}

// BillModel is the persistence model for the Bill aggregate root
type BillModel struct {
	AggregateModel
	BillNumber     string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	StudentID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_bill_student_year,priority:1"`
	AcademicYearID uuid.UUID       `gorm:"type:uuid;not null;index:idx_bill_student_year,priority:2"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Balance        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	IssuedDate     time.Time       `gorm:"type:date;not null"`
	CreatedBy      uuid.UUID       `gorm:"type:uuid;not null"`
	Items          []BillItemModel `gorm:"foreignKey:BillID;references:ID"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain Bill
func (m *BillModel) ToDomain() *fees.Bill {
	b := &fees.Bill{
		BillNumber:     m.BillNumber,
		StudentID:      m.StudentID,
		AcademicYearID: m.AcademicYearID,
		TotalAmount:    m.TotalAmount,
		PaidAmount:     m.PaidAmount,
		Balance:        m.Balance,
		Status:         fees.BillStatus(m.Status),
		IssuedDate:     m.IssuedDate,
		CreatedBy:      m.CreatedBy,
	}
	m.PopulateAggregateRoot(&b.BaseAggregateRoot)
	if len(m.Items) > 0 {
		b.Items = make([]fees.BillItem, len(m.Items))
		for i := range m.Items {
			b.Items[i] = m.Items[i].ToDomain()
		}
	}
	return b
}

// FromDomain populates the persistence model from a domain Bill, items included
func (m *BillModel) FromDomain(b *fees.Bill) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.BillNumber = b.BillNumber
	m.StudentID = b.StudentID
	m.AcademicYearID = b.AcademicYearID
	m.TotalAmount = b.TotalAmount
	m.PaidAmount = b.PaidAmount
	m.Balance = b.Balance
	m.Status = string(b.Status)
	m.IssuedDate = b.IssuedDate
	m.CreatedBy = b.CreatedBy
	m.Items = make([]BillItemModel, len(b.Items))
	for i := range b.Items {
		m.Items[i] = BillItemModelFromDomain(&b.Items[i])
	}
}

// BillModelFromDomain creates a new persistence model from a domain Bill
func BillModelFromDomain(b *fees.Bill) *BillModel {
	m := &BillModel{}
	m.FromDomain(b)
	return m
}

// BillItemModel is the persistence model for bill line items
type BillItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BillID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	FeeStructureID uuid.UUID       `gorm:"type:uuid;not null"`
	FeeCategoryID  uuid.UUID       `gorm:"type:uuid;not null"`
	Description    string          `gorm:"type:varchar(200);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (BillItemModel) TableName() string {
	return "bill_items"
}

// ToDomain converts the persistence model to a domain BillItem
func (m *BillItemModel) ToDomain() fees.BillItem {
	return fees.BillItem{
		ID:             m.ID,
		BillID:         m.BillID,
		FeeStructureID: m.FeeStructureID,
		FeeCategoryID:  m.FeeCategoryID,
		Description:    m.Description,
		Amount:         m.Amount,
	}
}

// BillItemModelFromDomain creates a persistence model from a domain BillItem
func BillItemModelFromDomain(i *fees.BillItem) BillItemModel {
	return BillItemModel{
		ID:             i.ID,
		BillID:         i.BillID,
		FeeStructureID: i.FeeStructureID,
		FeeCategoryID:  i.FeeCategoryID,
		Description:    i.Description,
		Amount:         i.Amount,
	}
}

// PaymentModel is the persistence model for payments.
// TransactionReference is nullable so the unique index ignores rows without one.
type PaymentModel struct {
	BaseModel
	BillID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	StudentID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	PaymentDate          time.Time       `gorm:"type:date;not null;index"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PaymentMethod        string          `gorm:"type:varchar(20);not null"`
	TransactionReference *string         `gorm:"type:varchar(100);uniqueIndex"`
	ReceivedBy           uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedBy            uuid.UUID       `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *fees.Payment {
	p := &fees.Payment{
		BaseEntity:  m.BaseModel.ToDomain(),
		BillID:      m.BillID,
		StudentID:   m.StudentID,
		PaymentDate: m.PaymentDate,
		AmountPaid:  m.AmountPaid,
		Method:      fees.PaymentMethod(m.PaymentMethod),
		ReceivedBy:  m.ReceivedBy,
		CreatedBy:   m.CreatedBy,
	}
	if m.TransactionReference != nil {
		p.TransactionReference = *m.TransactionReference
	}
	return p
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *fees.Payment) *PaymentModel {
	m := &PaymentModel{
		BillID:        p.BillID,
		StudentID:     p.StudentID,
		PaymentDate:   p.PaymentDate,
		AmountPaid:    p.AmountPaid,
		PaymentMethod: string(p.Method),
		ReceivedBy:    p.ReceivedBy,
		CreatedBy:     p.CreatedBy,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	if p.TransactionReference != "" {
		ref := p.TransactionReference
		m.TransactionReference = &ref
	}
	return m
}

// PaymentViewRow is the scan target for payment listings joined with bill,
// student, grade, academic year and receipt columns
type PaymentViewRow struct {
	PaymentModel
	BillNumber       string
	StudentName      string
	AdmissionNumber  string
	GradeName        string
	AcademicYearName string
	ReceiptNumber    *string
}

// ToDomain converts the row to a domain PaymentView
func (r *PaymentViewRow) ToDomain() fees.PaymentView {
	v := fees.PaymentView{
		Payment:          *r.PaymentModel.ToDomain(),
		BillNumber:       r.BillNumber,
		StudentName:      r.StudentName,
		AdmissionNumber:  r.AdmissionNumber,
		GradeName:        r.GradeName,
		AcademicYearName: r.AcademicYearName,
	}
	if r.ReceiptNumber != nil {
		v.ReceiptNumber = *r.ReceiptNumber
	}
	return v
}

// ReceiptModel is the persistence model for payment receipts
type ReceiptModel struct {
	BaseModel
	PaymentID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ReceiptNumber string    `gorm:"type:varchar(50);not null;uniqueIndex"`
	IssuedAt      time.Time `gorm:"not null"`
	GeneratedBy   uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (ReceiptModel) TableName() string {
	return "payment_receipts"
}

// ToDomain converts the persistence model to a domain Receipt
func (m *ReceiptModel) ToDomain() *fees.Receipt {
	return &fees.Receipt{
		BaseEntity:    m.BaseModel.ToDomain(),
		PaymentID:     m.PaymentID,
		ReceiptNumber: m.ReceiptNumber,
		IssuedAt:      m.IssuedAt,
		GeneratedBy:   m.GeneratedBy,
	}
}

// ReceiptModelFromDomain creates a new persistence model from a domain Receipt
func ReceiptModelFromDomain(r *fees.Receipt) *ReceiptModel {
	m := &ReceiptModel{
		PaymentID:     r.PaymentID,
		ReceiptNumber: r.ReceiptNumber,
		IssuedAt:      r.IssuedAt,
		GeneratedBy:   r.GeneratedBy,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}
