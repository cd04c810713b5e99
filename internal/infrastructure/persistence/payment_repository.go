package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// paymentViewColumns selects a payment plus the joined listing columns
const paymentViewColumns = `payments.*,
	bills.bill_number AS bill_number,
	students.name AS student_name,
	students.admission_number AS admission_number,
	COALESCE(grades.name, '') AS grade_name,
	COALESCE(academic_years.name, '') AS academic_year_name,
	payment_receipts.receipt_number AS receipt_number`

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fees.NewNotFoundError("payment", id)
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindViewByID finds a payment joined with its listing columns
func (r *GormPaymentRepository) FindViewByID(ctx context.Context, id uuid.UUID) (*fees.PaymentView, error) {
	var rows []models.PaymentViewRow
	if err := r.filtered(ctx, fees.PaymentFilter{}).
		Select(paymentViewColumns).
		Where("payments.id = ?", id).
		Limit(1).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	if len(rows) == 0 {
		return nil, fees.NewNotFoundError("payment", id)
	}
	view := rows[0].ToDomain()
	return &view, nil
}

// FindByBill returns the bill's payments in payment order
func (r *GormPaymentRepository) FindByBill(ctx context.Context, billID uuid.UUID) ([]fees.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("bill_id = ?", billID).
		Order("payment_date ASC").
		Order("created_at ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to find bill payments: %w", err)
	}

	payments := make([]fees.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments, nil
}

// FindAll returns a page of payment views and the total count
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter fees.PaymentFilter) ([]fees.PaymentView, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []models.PaymentViewRow
	err := applyOrder(r.filtered(ctx, filter), filter.OrderBy, filter.OrderDir, PaymentSortFields, "payments.payment_date", "payments.id").
		Select(paymentViewColumns).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}

	views := make([]fees.PaymentView, len(rows))
	for i := range rows {
		views[i] = rows[i].ToDomain()
	}
	return views, total, nil
}

// Each streams every payment view matching filter in payment date order
func (r *GormPaymentRepository) Each(ctx context.Context, filter fees.PaymentFilter, fn func(fees.PaymentView) error) error {
	query := r.filtered(ctx, filter).
		Select(paymentViewColumns).
		Order("payments.payment_date ASC").
		Order("payments.id ASC")

	rows, err := query.Rows()
	if err != nil {
		return fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row models.PaymentViewRow
		if err := query.ScanRows(rows, &row); err != nil {
			return fmt.Errorf("failed to scan payment: %w", err)
		}
		if err := fn(row.ToDomain()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate payments: %w", err)
	}
	return nil
}

// filtered builds the joined payment query for filter, without paging
func (r *GormPaymentRepository) filtered(ctx context.Context, filter fees.PaymentFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Joins("JOIN bills ON bills.id = payments.bill_id").
		Joins("JOIN students ON students.id = payments.student_id").
		Joins("LEFT JOIN grades ON grades.id = students.grade_id").
		Joins("LEFT JOIN academic_years ON academic_years.id = bills.academic_year_id").
		Joins("LEFT JOIN payment_receipts ON payment_receipts.payment_id = payments.id")

	if filter.DateFrom != nil {
		query = query.Where("payments.payment_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("payments.payment_date <= ?", *filter.DateTo)
	}
	if filter.AcademicYearID != nil {
		query = query.Where("bills.academic_year_id = ?", *filter.AcademicYearID)
	}
	if filter.GradeID != nil {
		query = query.Where("students.grade_id = ?", *filter.GradeID)
	}
	if filter.BillID != nil {
		query = query.Where("payments.bill_id = ?", *filter.BillID)
	}
	if filter.Method != nil {
		query = query.Where("payments.payment_method = ?", string(*filter.Method))
	}
	if filter.MinAmount != nil {
		query = query.Where("payments.amount_paid >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		query = query.Where("payments.amount_paid <= ?", *filter.MaxAmount)
	}
	if filter.ReceiptNumber != "" {
		query = query.Where(containsLike("payment_receipts.receipt_number"), likePattern(filter.ReceiptNumber))
	}
	if filter.Reference != "" {
		query = query.Where(containsLike("payments.transaction_reference"), likePattern(filter.Reference))
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where(
			containsLike("students.name")+" OR "+containsLike("students.admission_number")+" OR "+
				containsLike("bills.bill_number")+" OR "+containsLike("payments.transaction_reference"),
			pattern, pattern, pattern, pattern)
	}
	return query
}

// Ensure GormPaymentRepository implements PaymentRepository
var _ fees.PaymentRepository = (*GormPaymentRepository)(nil)
