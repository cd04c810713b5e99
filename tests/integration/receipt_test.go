//go:build integration

package integration

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receiptNumberPattern = regexp.MustCompile(`^RCP-\d{4}-\d{8}$`)

func TestReceipts_ConcurrentIssuanceYieldsUniqueNumbers(t *testing.T) {
	tdb := NewTestDB(t)
	seed := tdb.SeedReference()
	ledger := tdb.NewLedger(5 * time.Second)
	actor := uuid.New()
	bill := ledger.GenerateBill(t, seed, actor)

	var paymentIDs []uuid.UUID
	for i := 0; i < 8; i++ {
		p, err := ledger.Ledger.RecordPayment(context.Background(), cashPayment(bill.ID, "100.00", actor))
		require.NoError(t, err)
		paymentIDs = append(paymentIDs, p.ID)
	}

	var wg sync.WaitGroup
	numbers := make([]string, len(paymentIDs))
	errs := make([]error, len(paymentIDs))
	for i, id := range paymentIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			r, err := ledger.Receipts.IssueReceipt(context.Background(), id, actor)
			errs[i] = err
			if err == nil {
				numbers[i] = r.ReceiptNumber
			}
		}(i, id)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range paymentIDs {
		require.NoError(t, errs[i])
		assert.Regexp(t, receiptNumberPattern, numbers[i])
		assert.False(t, seen[numbers[i]], "receipt number %s issued twice", numbers[i])
		seen[numbers[i]] = true
	}
}

func TestReceipts_OnePerPayment(t *testing.T) {
	tdb := NewTestDB(t)
	seed := tdb.SeedReference()
	ledger := tdb.NewLedger(time.Second)
	actor := uuid.New()
	bill := ledger.GenerateBill(t, seed, actor)

	p, err := ledger.Ledger.RecordPayment(context.Background(), cashPayment(bill.ID, "500.00", actor))
	require.NoError(t, err)

	const racers = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		dupes   int
		unknown []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Receipts.IssueReceipt(context.Background(), p.ID, actor)
			mu.Lock()
			defer mu.Unlock()
			var dup *fees.DuplicateReceiptError
			switch {
			case err == nil:
				issued++
			case errors.As(err, &dup) && !dup.Exhausted:
				dupes++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, 1, issued)
	assert.Equal(t, racers-1, dupes)

	var count int
	require.NoError(t, tdb.SqlDB.QueryRow(`SELECT COUNT(*) FROM payment_receipts WHERE payment_id = $1`, p.ID).Scan(&count))
	assert.Equal(t, 1, count)

	_, err = ledger.Receipts.IssueReceipt(context.Background(), p.ID, actor)
	var dup *fees.DuplicateReceiptError
	require.ErrorAs(t, err, &dup)
	assert.NotEmpty(t, dup.ReceiptNumber)
}

func TestReceipts_SequenceSkipsCollidingNumber(t *testing.T) {
	tdb := NewTestDB(t)
	seed := tdb.SeedReference()
	ledger := tdb.NewLedger(time.Second)
	actor := uuid.New()
	bill := ledger.GenerateBill(t, seed, actor)

	first, err := ledger.Ledger.RecordPayment(context.Background(), cashPayment(bill.ID, "100.00", actor))
	require.NoError(t, err)
	second, err := ledger.Ledger.RecordPayment(context.Background(), cashPayment(bill.ID, "100.00", actor))
	require.NoError(t, err)

	r1, err := ledger.Receipts.IssueReceipt(context.Background(), first.ID, actor)
	require.NoError(t, err)

	// rewind the sequence so the next allocation repeats the first number
	_, err = tdb.SqlDB.Exec(`SELECT setval('receipt_number_seq', 1, false)`)
	require.NoError(t, err)

	r2, err := ledger.Receipts.IssueReceipt(context.Background(), second.ID, actor)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ReceiptNumber, r2.ReceiptNumber)
}
