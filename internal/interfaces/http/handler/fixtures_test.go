package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	feesapp "github.com/school/feeledger/internal/application/fees"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/event"
	"github.com/school/feeledger/internal/infrastructure/persistence"
	"github.com/school/feeledger/internal/infrastructure/persistence/models"
	"github.com/school/feeledger/internal/interfaces/http/dto"
	"github.com/school/feeledger/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

// apiEnv serves the ledger handlers over an in-memory sqlite database
type apiEnv struct {
	db     *gorm.DB
	router *gin.Engine
	actor  uuid.UUID

	yearID    uuid.UUID
	gradeID   uuid.UUID
	studentID uuid.UUID
	library   uuid.UUID
	lineIDs   []uuid.UUID

	payments *feesapp.PaymentService
	receipts *feesapp.ReceiptService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:api_%s?mode=memory&cache=shared", uuid.NewString())
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
	structureRepo := persistence.NewGormFeeStructureRepository(db, saver)
	billRepo := persistence.NewGormBillRepository(db, saver)
	ledgerRepo := persistence.NewGormLedgerRepository(db, saver, time.Second)
	paymentRepo := persistence.NewGormPaymentRepository(db)
	receiptRepo := persistence.NewGormReceiptRepository(db, saver)

	catalog := feesapp.NewCatalogService(refs, structureRepo)
	bills := feesapp.NewBillService(refs, structureRepo, billRepo)
	ledger := feesapp.NewLedgerService(ledgerRepo)
	payments := feesapp.NewPaymentService(paymentRepo, billRepo)
	receipts := feesapp.NewReceiptService(receiptRepo, paymentRepo, billRepo)

	env := &apiEnv{
		db:       db,
		actor:    uuid.New(),
		payments: payments,
		receipts: receipts,
	}
	env.seed(t)

	billH := NewBillHandler(bills, payments)
	paymentH := NewPaymentHandler(ledger, payments, receipts)
	receiptH := NewReceiptHandler(receipts)
	feeH := NewFeeStructureHandler(catalog)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Auth(middleware.AuthConfig{AllowHeaderIdentity: true}))
	api := r.Group("/api/v1")
	api.POST("/bills", billH.Generate)
	api.GET("/bills", billH.List)
	api.GET("/bills/:id", billH.GetByID)
	api.GET("/bills/:id/payments", billH.ListPayments)
	api.POST("/payments", paymentH.Record)
	api.GET("/payments", paymentH.List)
	api.GET("/payments/export", paymentH.Export)
	api.POST("/payments/export/archive", paymentH.Archive)
	api.GET("/payments/:id", paymentH.GetByID)
	api.POST("/payments/:id/receipt", paymentH.IssueReceipt)
	api.GET("/receipts/:id", receiptH.GetByID)
	api.GET("/receipts/:id/pdf", receiptH.PDF)
	api.GET("/fee-structures", feeH.Lookup)
	api.POST("/fee-structures", feeH.Create)
	api.GET("/fee-structures/:id", feeH.GetByID)
	env.router = r

	return env
}

func (e *apiEnv) seed(t *testing.T) {
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

	e.yearID = year.ID
	e.gradeID = grade.ID
	e.studentID = student.ID
	e.library = library.ID

	for _, p := range []struct {
		category uuid.UUID
		amount   string
	}{{tuition.ID, "1500.00"}, {transport.ID, "250.50"}} {
		fs, err := fees.NewFeeStructure(p.category, grade.ID, year.ID, decimal.RequireFromString(p.amount), nil)
		require.NoError(t, err)
		require.NoError(t, e.db.Create(models.FeeStructureModelFromDomain(fs)).Error)
		e.lineIDs = append(e.lineIDs, fs.ID)
	}
}

// do sends a request as the fixture actor
func (e *apiEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	return e.doAs(e.actor.String(), method, path, body)
}

func (e *apiEnv) doAs(userID, method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createBill bills the fixture student for both priced lines (1750.50)
func (e *apiEnv) createBill(t *testing.T) feesapp.BillResponse {
	t.Helper()
	ids := make([]string, len(e.lineIDs))
	for i, id := range e.lineIDs {
		ids[i] = id.String()
	}
	w := e.do(http.MethodPost, "/api/v1/bills", gin.H{
		"student_id":        e.studentID,
		"academic_year_id":  e.yearID,
		"fee_structure_ids": ids,
		"issued_date":       "2026-03-10",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bill feesapp.BillResponse
	decodeData(t, w, &bill)
	return bill
}

func (e *apiEnv) pay(billID uuid.UUID, amount, method, reference string) *httptest.ResponseRecorder {
	return e.do(http.MethodPost, "/api/v1/payments", gin.H{
		"bill_id":      billID,
		"student_id":   e.studentID,
		"payment_date": "2026-03-11",
		"amount":       amount,
		"method":       method,
		"reference":    reference,
	})
}

// decodeData unmarshals the envelope's data field into out
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// decodeError returns the envelope's error
func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}
