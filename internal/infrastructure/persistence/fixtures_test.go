package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingSaver captures events handed to the outbox
type recordingSaver struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (s *recordingSaver) SaveEvents(_ context.Context, txProvider any, events ...shared.DomainEvent) error {
	if _, ok := txProvider.(*gorm.DB); !ok {
		return fmt.Errorf("unexpected tx provider %T", txProvider)
	}
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSaver) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.EventType()
	}
	return out
}

type ledgerFixture struct {
	db        *gorm.DB
	saver     *recordingSaver
	actor     uuid.UUID
	year      *fees.AcademicYear
	grade     *fees.Grade
	student   *fees.Student
	tuition   *fees.FeeCategory
	transport *fees.FeeCategory
	lines     []fees.FeeStructureLine
}

// setupLedgerSQLite opens an isolated in-memory database with the ledger
// schema, the receipt counter table and one priced student
func setupLedgerSQLite(t *testing.T) *ledgerFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
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
	require.NoError(t, db.Exec("CREATE TABLE "+ReceiptSequenceName+" (value INTEGER NOT NULL)").Error)
	require.NoError(t, db.Exec("INSERT INTO "+ReceiptSequenceName+" (value) VALUES (0)").Error)

	f := &ledgerFixture{db: db, saver: &recordingSaver{}, actor: uuid.New()}
	f.seed(t)
	return f
}

func (f *ledgerFixture) seed(t *testing.T) {
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

	for _, row := range []any{&year, &grade, &student, &tuition, &transport} {
		require.NoError(t, f.db.Create(row).Error)
	}

	f.year = year.ToDomain()
	f.grade = grade.ToDomain()
	f.student = student.ToDomain()
	f.tuition = tuition.ToDomain()
	f.transport = transport.ToDomain()

	f.lines = []fees.FeeStructureLine{
		f.addStructure(t, f.transport, "250.50"),
		f.addStructure(t, f.tuition, "1500.00"),
	}
}

func (f *ledgerFixture) addStructure(t *testing.T, category *fees.FeeCategory, amount string) fees.FeeStructureLine {
	t.Helper()
	fs, err := fees.NewFeeStructure(category.ID, f.grade.ID, f.year.ID, decimal.RequireFromString(amount), nil)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(models.FeeStructureModelFromDomain(fs)).Error)
	return fees.FeeStructureLine{FeeStructure: *fs, CategoryName: category.Name}
}

// addStudent inserts another student in the fixture grade
func (f *ledgerFixture) addStudent(t *testing.T, name, admission string) *fees.Student {
	t.Helper()
	now := time.Now().UTC()
	m := models.StudentModel{
		ID:              uuid.New(),
		Name:            name,
		AdmissionNumber: admission,
		GradeID:         f.grade.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.db.Create(&m).Error)
	return m.ToDomain()
}

// createBill persists a bill over every fixture line for the student
func (f *ledgerFixture) createBill(t *testing.T, student *fees.Student) *fees.Bill {
	t.Helper()
	bill, err := fees.NewBill(student, f.year, f.lines, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), f.actor)
	require.NoError(t, err)
	require.NoError(t, NewGormBillRepository(f.db, f.saver).Create(context.Background(), bill))
	return bill
}

// recordPayment applies a payment through the ledger repository the way the
// ledger service does
func (f *ledgerFixture) recordPayment(t *testing.T, bill *fees.Bill, amount string, method fees.PaymentMethod, ref string, date time.Time) *fees.Payment {
	t.Helper()
	payment, err := fees.NewPayment(fees.PaymentParams{
		BillID:      bill.ID,
		StudentID:   bill.StudentID,
		PaymentDate: date,
		Amount:      decimal.RequireFromString(amount),
		Method:      method,
		Reference:   ref,
		CreatedBy:   f.actor,
	})
	require.NoError(t, err)
	if method == fees.PaymentMethodCash {
		payment.AssignReference(fees.NewCashReference(date))
	}

	repo := NewGormLedgerRepository(f.db, f.saver, time.Second)
	err = repo.WithLockedBill(context.Background(), bill.ID, func(tx fees.LedgerTx, locked *fees.Bill) error {
		if err := tx.InsertPayment(context.Background(), payment); err != nil {
			return err
		}
		if err := locked.ApplyPayment(payment); err != nil {
			return err
		}
		return tx.UpdateBill(context.Background(), locked)
	})
	require.NoError(t, err)
	return payment
}

// newMockDatabase runs gorm's postgres dialector over sqlmock
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return &Database{DB: gormDB, SQL: mockDB}, mock, mockDB
}
