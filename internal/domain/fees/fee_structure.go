package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FeeStructure is a priced catalog line scoped to (fee category, grade, academic year).
// Billing operations only read it.
type FeeStructure struct {
	shared.BaseEntity
	FeeCategoryID  uuid.UUID
	GradeID        uuid.UUID
	AcademicYearID uuid.UUID
	Amount         decimal.Decimal
	DueDate        *time.Time
}

// NewFeeStructure validates and creates a catalog line
func NewFeeStructure(categoryID, gradeID, yearID uuid.UUID, amount decimal.Decimal, dueDate *time.Time) (*FeeStructure, error) {
	verr := &ValidationError{}
	if categoryID == uuid.Nil {
		verr.Add("fee_category_id", "is required")
	}
	if gradeID == uuid.Nil {
		verr.Add("grade_id", "is required")
	}
	if yearID == uuid.Nil {
		verr.Add("academic_year_id", "is required")
	}
	if amount.IsNegative() {
		verr.Add("amount", "must not be negative")
	} else if !valueobject.HasValidScale(amount) {
		verr.Add("amount", "must have at most 2 decimal places")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var due *time.Time
	if dueDate != nil {
		d := truncateToDay(*dueDate)
		due = &d
	}

	return &FeeStructure{
		BaseEntity:     shared.NewBaseEntity(),
		FeeCategoryID:  categoryID,
		GradeID:        gradeID,
		AcademicYearID: yearID,
		Amount:         amount,
		DueDate:        due,
	}, nil
}

// AppliesTo reports whether the line prices the given grade and year
func (f *FeeStructure) AppliesTo(gradeID, yearID uuid.UUID) bool {
	return f.GradeID == gradeID && f.AcademicYearID == yearID
}

// FeeStructureLine is a catalog line joined with its category name,
// the shape the catalog hands to bill generation and listings.
type FeeStructureLine struct {
	FeeStructure
	CategoryName string
}
