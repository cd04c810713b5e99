//go:build integration

// Package integration runs the ledger against a real PostgreSQL started with
// testcontainers. Run with: go test -tags integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/event"
	"github.com/school/feeledger/internal/infrastructure/migration"
	"github.com/school/feeledger/internal/infrastructure/persistence"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/school/feeledger/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB represents a migrated test database
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewTestDB starts a fresh PostgreSQL container and applies every migration
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("feeledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		DB:        db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		t:         t,
	}
	t.Cleanup(testDB.Close)
	return testDB
}

// Close closes the connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// enough connections for the concurrent payment tests to contend
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.New(sqlDB, migrations.FS, nil)
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// Seed holds the reference rows every ledger test bills against
type Seed struct {
	YearID        uuid.UUID
	GradeID       uuid.UUID
	StudentID     uuid.UUID
	LibraryID     uuid.UUID
	FeeStructures []uuid.UUID
}

// SeedReference inserts an academic year, a grade, a student and two priced
// fee lines: tuition 1500.00 and transport 250.50
func (tdb *TestDB) SeedReference() Seed {
	tdb.t.Helper()
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
	grade := models.GradeModel{ID: uuid.New(), Name: "Senior 2", CreatedAt: now, UpdatedAt: now}
	student := models.StudentModel{
		ID:              uuid.New(),
		Name:            "Brian Mugisha",
		AdmissionNumber: "ADM-" + uuid.NewString()[:8],
		GradeID:         grade.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tuition := models.FeeCategoryModel{ID: uuid.New(), Name: "Tuition " + uuid.NewString()[:4], CreatedAt: now, UpdatedAt: now}
	transport := models.FeeCategoryModel{ID: uuid.New(), Name: "Transport " + uuid.NewString()[:4], CreatedAt: now, UpdatedAt: now}
	library := models.FeeCategoryModel{ID: uuid.New(), Name: "Library " + uuid.NewString()[:4], CreatedAt: now, UpdatedAt: now}
	for _, row := range []any{&year, &grade, &student, &tuition, &transport, &library} {
		require.NoError(tdb.t, tdb.DB.Create(row).Error)
	}

	seed := Seed{YearID: year.ID, GradeID: grade.ID, StudentID: student.ID, LibraryID: library.ID}
	for _, p := range []struct {
		category uuid.UUID
		amount   string
	}{{tuition.ID, "1500.00"}, {transport.ID, "250.50"}} {
		fs, err := fees.NewFeeStructure(p.category, grade.ID, year.ID, decimal.RequireFromString(p.amount), nil)
		require.NoError(tdb.t, err)
		require.NoError(tdb.t, tdb.DB.Create(models.FeeStructureModelFromDomain(fs)).Error)
		seed.FeeStructures = append(seed.FeeStructures, fs.ID)
	}
	return seed
}

// Ledger wires the fee services over the test database
type Ledger struct {
	Serializer *event.EventSerializer
	Outbox     *event.GormOutboxRepository
	Catalog    *feesapp.CatalogService
	Bills      *feesapp.BillService
	Ledger     *feesapp.LedgerService
	Payments   *feesapp.PaymentService
	Receipts   *feesapp.ReceiptService
}

// NewLedger builds the services the way cmd/server does. lockTimeout bounds
// the wait for a bill row lock.
func (tdb *TestDB) NewLedger(lockTimeout time.Duration, opts ...feesapp.Option) *Ledger {
	serializer := event.NewEventSerializer()
	event.RegisterFeeEvents(serializer)
	saver := event.NewOutboxPublisher(serializer)

	refs := persistence.NewGormReferenceRepository(tdb.DB)
	structures := persistence.NewGormFeeStructureRepository(tdb.DB, saver)
	bills := persistence.NewGormBillRepository(tdb.DB, saver)
	payments := persistence.NewGormPaymentRepository(tdb.DB)
	receipts := persistence.NewGormReceiptRepository(tdb.DB, saver)

	return &Ledger{
		Serializer: serializer,
		Outbox:     event.NewGormOutboxRepository(tdb.DB),
		Catalog:    feesapp.NewCatalogService(refs, structures, opts...),
		Bills:      feesapp.NewBillService(refs, structures, bills, opts...),
		Ledger:     feesapp.NewLedgerService(persistence.NewGormLedgerRepository(tdb.DB, saver, lockTimeout), opts...),
		Payments:   feesapp.NewPaymentService(payments, bills, opts...),
		Receipts:   feesapp.NewReceiptService(receipts, payments, bills, opts...),
	}
}

// GenerateBill bills the seeded student for both priced lines (1750.50)
func (l *Ledger) GenerateBill(t *testing.T, seed Seed, actor uuid.UUID) *feesapp.BillResponse {
	t.Helper()
	bill, err := l.Bills.GenerateBill(context.Background(), feesapp.GenerateBillInput{
		StudentID:       seed.StudentID,
		AcademicYearID:  seed.YearID,
		FeeStructureIDs: seed.FeeStructures,
		Actor:           actor,
	})
	require.NoError(t, err)
	return bill
}
