package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormBillRepository_CreateAndFindByID(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormBillRepository(f.db, f.saver)

	bill := f.createBill(t, f.student)
	assert.Empty(t, bill.GetDomainEvents())
	assert.Equal(t, []string{fees.EventTypeBillGenerated}, f.saver.types())

	found, err := repo.FindByID(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, bill.BillNumber, found.BillNumber)
	assert.Equal(t, f.student.ID, found.StudentID)
	assert.Equal(t, fees.BillStatusUnpaid, found.Status)
	assert.True(t, found.TotalAmount.Equal(decimal.RequireFromString("1750.50")))
	assert.True(t, found.Balance.Equal(found.TotalAmount))
	assert.True(t, found.PaidAmount.IsZero())
	assert.Equal(t, 1, found.Version)
	require.Len(t, found.Items, 2)

	descriptions := []string{found.Items[0].Description, found.Items[1].Description}
	assert.ElementsMatch(t, []string{"Tuition", "Transport"}, descriptions)
}

func TestGormBillRepository_Create_DuplicateBillNumber(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormBillRepository(f.db, f.saver)

	first := f.createBill(t, f.student)

	second, err := fees.NewBill(f.student, f.year, f.lines, time.Now(), f.actor)
	require.NoError(t, err)
	second.BillNumber = first.BillNumber

	err = repo.Create(context.Background(), second)
	assert.ErrorIs(t, err, fees.ErrBillNumberTaken)

	_, err = repo.FindByID(context.Background(), second.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormBillRepository_FindAll(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormBillRepository(f.db, f.saver)
	ctx := context.Background()

	other := f.addStudent(t, "Brian Mugisha", "ADM-0002")
	b1 := f.createBill(t, f.student)
	b2 := f.createBill(t, f.student)
	f.createBill(t, other)
	f.recordPayment(t, b2, "100.00", fees.PaymentMethodCash, "", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC))

	t.Run("by student", func(t *testing.T) {
		bills, total, err := repo.FindAll(ctx, fees.BillFilter{StudentID: &f.student.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, bills, 2)
	})

	t.Run("by status", func(t *testing.T) {
		status := fees.BillStatusPartial
		bills, total, err := repo.FindAll(ctx, fees.BillFilter{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, bills, 1)
		assert.Equal(t, b2.ID, bills[0].ID)
		assert.Len(t, bills[0].Items, 2)
	})

	t.Run("by bill number search", func(t *testing.T) {
		bills, total, err := repo.FindAll(ctx, fees.BillFilter{Filter: shared.Filter{Search: b1.BillNumber[len(b1.BillNumber)-6:]}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, bills, 1)
		assert.Equal(t, b1.ID, bills[0].ID)
	})

	t.Run("paginates with full total", func(t *testing.T) {
		bills, total, err := repo.FindAll(ctx, fees.BillFilter{
			AcademicYearID: &f.year.ID,
			Filter:         shared.Filter{Page: 2, PageSize: 2, OrderBy: "bill_number", OrderDir: "asc"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, bills, 1)
	})
}

func TestGormBillRepository_FindByID_NotFound(t *testing.T) {
	f := setupLedgerSQLite(t)
	repo := NewGormBillRepository(f.db, nil)

	_, err := repo.FindByID(context.Background(), f.student.ID)

	var nf *fees.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "bill", nf.Resource)
}
