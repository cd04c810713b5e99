package fees

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/event"
	"github.com/school/feeledger/internal/infrastructure/persistence"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ledgerEnv wires every service over one in-memory sqlite database with the
// real repositories and outbox publisher
type ledgerEnv struct {
	db    *gorm.DB
	actor uuid.UUID
	today time.Time

	year      *fees.AcademicYear
	grade     *fees.Grade
	student   *fees.Student
	tuition   uuid.UUID
	transport uuid.UUID
	library   uuid.UUID
	lines     []fees.FeeStructureLine

	catalog  *CatalogService
	bills    *BillService
	ledger   *LedgerService
	payments *PaymentService
	receipts *ReceiptService
}

func newLedgerEnv(t *testing.T, opts ...Option) *ledgerEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:app_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.AcademicYearModel{},
		&models.GradeModel{},
		&models.StudentModel{},
		&models.FeeCategoryModel{},
		&models.FeeStructureModel{},
		&models.BillModel{},
		&models.BillItemModel{},
		&models.PaymentModel{},
		&models.ReceiptModel{},
		&models.OutboxEntryModel{},
	))
	require.NoError(t, db.Exec("CREATE TABLE "+persistence.ReceiptSequenceName+" (value INTEGER NOT NULL)").Error)
	require.NoError(t, db.Exec("INSERT INTO "+persistence.ReceiptSequenceName+" (value) VALUES (0)").Error)

	serializer := event.NewEventSerializer()
	event.RegisterFeeEvents(serializer)
	saver := event.NewOutboxPublisher(serializer)

	refs := persistence.NewGormReferenceRepository(db)
	structures := persistence.NewGormFeeStructureRepository(db, saver)
	bills := persistence.NewGormBillRepository(db, saver)
	ledger := persistence.NewGormLedgerRepository(db, saver, time.Second)
	payments := persistence.NewGormPaymentRepository(db)
	receipts := persistence.NewGormReceiptRepository(db, saver)

	today := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return today })}, opts...)

	env := &ledgerEnv{
		db:       db,
		actor:    uuid.New(),
		today:    today,
		catalog:  NewCatalogService(refs, structures, opts...),
		bills:    NewBillService(refs, structures, bills, opts...),
		ledger:   NewLedgerService(ledger, opts...),
		payments: NewPaymentService(payments, bills, opts...),
		receipts: NewReceiptService(receipts, payments, bills, opts...),
	}
	env.seed(t)
	return env
}

func (e *ledgerEnv) seed(t *testing.T) {
	t.Helper()
	now := time.Now().UTC()

	year := models.AcademicYearModel{
		ID:        uuid.New(),
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	grade := models.GradeModel{ID: uuid.New(), Name: "Primary 5", CreatedAt: now, UpdatedAt: now}
	student := models.StudentModel{
		ID:              uuid.New(),
		Name:            "Amina Okello",
		AdmissionNumber: "ADM-0001",
		GradeID:         grade.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tuition := models.FeeCategoryModel{ID: uuid.New(), Name: "Tuition", CreatedAt: now, UpdatedAt: now}
	transport := models.FeeCategoryModel{ID: uuid.New(), Name: "Transport", CreatedAt: now, UpdatedAt: now}
	library := models.FeeCategoryModel{ID: uuid.New(), Name: "Library", CreatedAt: now, UpdatedAt: now}
	for _, row := range []any{&year, &grade, &student, &tuition, &transport, &library} {
		require.NoError(t, e.db.Create(row).Error)
	}

	e.year = year.ToDomain()
	e.grade = grade.ToDomain()
	e.student = student.ToDomain()
	e.tuition = tuition.ID
	e.transport = transport.ID
	e.library = library.ID

	e.lines = []fees.FeeStructureLine{
		e.price(t, tuition.ID, "Tuition", e.grade.ID, e.year.ID, "1500.00"),
		e.price(t, transport.ID, "Transport", e.grade.ID, e.year.ID, "250.50"),
	}
}

// price inserts a catalog line directly
func (e *ledgerEnv) price(t *testing.T, categoryID uuid.UUID, name string, gradeID, yearID uuid.UUID, amount string) fees.FeeStructureLine {
	t.Helper()
	fs, err := fees.NewFeeStructure(categoryID, gradeID, yearID, decimal.RequireFromString(amount), nil)
	require.NoError(t, err)
	require.NoError(t, e.db.Create(models.FeeStructureModelFromDomain(fs)).Error)
	return fees.FeeStructureLine{FeeStructure: *fs, CategoryName: name}
}

func (e *ledgerEnv) addStudent(t *testing.T, name, admission string, gradeID uuid.UUID) *fees.Student {
	t.Helper()
	now := time.Now().UTC()
	m := models.StudentModel{
		ID:              uuid.New(),
		Name:            name,
		AdmissionNumber: admission,
		GradeID:         gradeID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, e.db.Create(&m).Error)
	return m.ToDomain()
}

func (e *ledgerEnv) lineIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(e.lines))
	for i, l := range e.lines {
		ids[i] = l.ID
	}
	return ids
}

// generateBill bills the fixture student for every fixture line (1750.50)
func (e *ledgerEnv) generateBill(t *testing.T) *BillResponse {
	t.Helper()
	bill, err := e.bills.GenerateBill(context.Background(), GenerateBillInput{
		StudentID:       e.student.ID,
		AcademicYearID:  e.year.ID,
		FeeStructureIDs: e.lineIDs(),
		Actor:           e.actor,
	})
	require.NoError(t, err)
	return bill
}

func (e *ledgerEnv) pay(billID uuid.UUID, amount string, method fees.PaymentMethod, ref string) (*PaymentResponse, error) {
	return e.ledger.RecordPayment(context.Background(), RecordPaymentInput{
		BillID:      billID,
		PaymentDate: e.today,
		Amount:      decimal.RequireFromString(amount),
		Method:      method,
		Reference:   ref,
		CreatedBy:   e.actor,
	})
}

// outboxTypes lists the event types in the outbox in insertion order
func (e *ledgerEnv) outboxTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, e.db.Model(&models.OutboxEntryModel{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	return types
}

func (e *ledgerEnv) paymentCount(t *testing.T, billID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.PaymentModel{}).Where("bill_id = ?", billID).Count(&n).Error)
	return n
}

func decimalFrom(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
