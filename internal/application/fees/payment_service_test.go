package fees

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	key         string
	data        []byte
	contentType string
	uploadErr   error
}

func (f *fakeArchiver) Upload(_ context.Context, key string, data []byte, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.key = key
	f.data = append([]byte(nil), data...)
	f.contentType = contentType
	return nil
}

func (f *fakeArchiver) GenerateDownloadURL(_ context.Context, key string, _ time.Duration) (string, time.Time, error) {
	return "https://exports.example.test/" + key + "?sig=abc", time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC), nil
}

// payOn records a payment with an explicit payment date
func (e *ledgerEnv) payOn(t *testing.T, billID uuid.UUID, day time.Time, amount string, method fees.PaymentMethod, ref string) *PaymentResponse {
	t.Helper()
	p, err := e.ledger.RecordPayment(context.Background(), RecordPaymentInput{
		BillID:      billID,
		PaymentDate: day,
		Amount:      decimalFrom(amount),
		Method:      method,
		Reference:   ref,
		CreatedBy:   e.actor,
	})
	require.NoError(t, err)
	return p
}

func TestPaymentService_Reads(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()
	bill := env.generateBill(t)

	first := env.payOn(t, bill.ID, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "500", fees.PaymentMethodBank, "BNK-100")
	second := env.payOn(t, bill.ID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "250.50", fees.PaymentMethodCash, "")

	t.Run("get payment", func(t *testing.T) {
		got, err := env.payments.GetPayment(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "500.00", got.Amount)
		assert.Equal(t, "Bank", got.Method)
		assert.Equal(t, "BNK-100", got.TransactionReference)
		assert.Nil(t, got.Bill)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := env.payments.GetPayment(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("bill payments in payment order", func(t *testing.T) {
		list, err := env.payments.ListBillPayments(ctx, bill.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, second.ID, list[1].ID)
	})

	t.Run("payments of an unknown bill", func(t *testing.T) {
		_, err := env.payments.ListBillPayments(ctx, uuid.New())
		var nf *fees.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "bill", nf.Resource)
	})

	t.Run("bill without payments", func(t *testing.T) {
		other := env.generateBill(t)
		list, err := env.payments.ListBillPayments(ctx, other.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestPaymentService_ListPayments(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()
	bill := env.generateBill(t)

	env.payOn(t, bill.ID, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC), "100", fees.PaymentMethodCash, "")
	env.payOn(t, bill.ID, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), "200", fees.PaymentMethodMobileMoney, "MM-77")
	env.payOn(t, bill.ID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "300", fees.PaymentMethodBank, "BNK-5")

	t.Run("joined columns", func(t *testing.T) {
		page, err := env.payments.ListPayments(ctx, fees.PaymentFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Items, 3)
		for _, item := range page.Items {
			assert.Equal(t, "Amina Okello", item.StudentName)
			assert.Equal(t, "ADM-0001", item.AdmissionNumber)
			assert.Equal(t, "Primary 5", item.GradeName)
			assert.Equal(t, bill.BillNumber, item.BillNumber)
			assert.Empty(t, item.ReceiptNumber)
		}
	})

	method := fees.PaymentMethodMobileMoney
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	minAmount := decimalFrom("150")

	tests := []struct {
		name   string
		filter fees.PaymentFilter
		want   []string
	}{
		{"by method", fees.PaymentFilter{Method: &method}, []string{"200.00"}},
		{"by date range", fees.PaymentFilter{DateFrom: &from, DateTo: &to}, []string{"200.00"}},
		{"by minimum amount", fees.PaymentFilter{MinAmount: &minAmount, Filter: shared.Filter{OrderBy: "amount", OrderDir: "asc"}}, []string{"200.00", "300.00"}},
		{"by reference", fees.PaymentFilter{Reference: "bnk"}, []string{"300.00"}},
		{"by bill", fees.PaymentFilter{BillID: &bill.ID}, []string{"300.00", "200.00", "100.00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := env.payments.ListPayments(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, len(page.Items))
			for i, item := range page.Items {
				got[i] = item.Amount
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("paging", func(t *testing.T) {
		page, err := env.payments.ListPayments(ctx, fees.PaymentFilter{Filter: shared.Filter{Page: 2, PageSize: 2}})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, 2, page.TotalPages)
		assert.Len(t, page.Items, 1)
	})

	t.Run("invalid filters", func(t *testing.T) {
		bad := fees.PaymentMethod("Cheque")
		maxAmount := decimalFrom("10")
		_, err := env.payments.ListPayments(ctx, fees.PaymentFilter{
			DateFrom:  &to,
			DateTo:    &from,
			MinAmount: &minAmount,
			MaxAmount: &maxAmount,
			Method:    &bad,
		})
		var verr *fees.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.Fields, 3)
	})
}

func TestPaymentService_ExportPayments(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()
	bill := env.generateBill(t)

	env.payOn(t, bill.ID, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "250.50", fees.PaymentMethodBank, "BNK-2")
	cash := env.payOn(t, bill.ID, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), "1000", fees.PaymentMethodCash, "")
	receipt, err := env.receipts.IssueReceipt(ctx, cash.ID, env.actor)
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := env.payments.ExportPayments(ctx, fees.PaymentFilter{Filter: shared.Filter{Page: 1, PageSize: 1}}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ExportHeader, records[0])
	assert.Equal(t, []string{
		"2026-01-15",
		receipt.ReceiptNumber,
		"Amina Okello",
		"ADM-0001",
		"Primary 5",
		"2026",
		bill.BillNumber,
		"1000.00",
		"Cash",
		cash.TransactionReference,
	}, records[1])
	assert.Equal(t, "2026-03-02", records[2][0])
	assert.Empty(t, records[2][1])
	assert.Equal(t, "250.50", records[2][7])

	t.Run("no matches writes only the header", func(t *testing.T) {
		method := fees.PaymentMethodMobileMoney
		var out bytes.Buffer
		rows, err := env.payments.ExportPayments(ctx, fees.PaymentFilter{Method: &method}, &out)
		require.NoError(t, err)
		assert.Zero(t, rows)
		assert.Equal(t, strings.Join(ExportHeader, ",")+"\n", out.String())
	})
}

func TestExportRecord_NeutralizesFormulas(t *testing.T) {
	v := &fees.PaymentView{
		Payment: fees.Payment{
			PaymentDate:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Method:               fees.PaymentMethodMobileMoney,
			TransactionReference: "+256700123456",
		},
		StudentName:     `=HYPERLINK("http://evil.example","Amina")`,
		AdmissionNumber: "@SUM(A1:A9)",
		GradeName:       "-2+3",
		BillNumber:      "BILL-2026-000001",
	}

	record := exportRecord(v)

	assert.Equal(t, `'=HYPERLINK("http://evil.example","Amina")`, record[2])
	assert.Equal(t, "'@SUM(A1:A9)", record[3])
	assert.Equal(t, "'-2+3", record[4])
	assert.Equal(t, "BILL-2026-000001", record[6])
	assert.Equal(t, "'+256700123456", record[9])
	assert.Equal(t, "Mobile Money", record[8])
}

func TestPaymentService_ArchiveExport(t *testing.T) {
	env := newLedgerEnv(t)
	ctx := context.Background()
	bill := env.generateBill(t)
	env.payOn(t, bill.ID, env.today, "10", fees.PaymentMethodBank, "BNK-1")

	t.Run("without storage", func(t *testing.T) {
		_, err := env.payments.ArchiveExport(ctx, fees.PaymentFilter{}, env.actor)
		assert.ErrorIs(t, err, ErrArchiveUnavailable)
	})

	t.Run("uploads and signs", func(t *testing.T) {
		archiver := &fakeArchiver{}
		env.payments.SetArchiver(archiver, "/exports/")

		resp, err := env.payments.ArchiveExport(ctx, fees.PaymentFilter{}, env.actor)
		require.NoError(t, err)
		assert.Regexp(t, `^exports/payments-20260310-093000-[0-9a-f]{8}\.csv$`, resp.Key)
		assert.Equal(t, archiver.key, resp.Key)
		assert.Equal(t, "text/csv", archiver.contentType)
		assert.Equal(t, 1, resp.Rows)
		assert.Contains(t, resp.URL, resp.Key)
		assert.Contains(t, string(archiver.data), "BNK-1")
	})

	t.Run("upload failure", func(t *testing.T) {
		env.payments.SetArchiver(&fakeArchiver{uploadErr: errors.New("bucket gone")}, "")
		_, err := env.payments.ArchiveExport(ctx, fees.PaymentFilter{}, env.actor)
		assert.ErrorContains(t, err, "bucket gone")
	})
}
