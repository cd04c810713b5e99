package telemetry

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LedgerMetrics counts ledger outcomes. A nil *LedgerMetrics records nothing,
// so services can run without metrics wired.
type LedgerMetrics struct {
	billsGenerated    metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	paymentAmount     metric.Float64Histogram
	overpayments      metric.Int64Counter
	retryable         metric.Int64Counter
	receiptsIssued    metric.Int64Counter
	receiptCollisions metric.Int64Counter
	consistency       metric.Int64Counter
}

// amountBuckets suits school fee amounts in minor-unit-free currencies
var amountBuckets = []float64{1000, 5000, 10000, 50000, 100000, 250000, 500000, 1000000, 5000000}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewLedgerMetrics: meter cannot be nil")
	}

	var (
		m    LedgerMetrics
		errs []error
	)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("1"))
		errs = append(errs, err)
		return c
	}

	m.billsGenerated = counter("fees_bills_generated_total", "Bills generated")
	m.paymentsRecorded = counter("fees_payments_recorded_total", "Payments committed to the ledger")
	m.overpayments = counter("fees_overpayments_rejected_total", "Payments rejected for exceeding the balance")
	m.retryable = counter("fees_retryable_failures_total", "Operations aborted with a retryable failure")
	m.receiptsIssued = counter("fees_receipts_issued_total", "Receipts issued")
	m.receiptCollisions = counter("fees_receipt_number_collisions_total", "Receipt number allocations that hit an existing number")
	m.consistency = counter("fees_consistency_violations_total", "Ledger invariant violations detected before commit")

	hist, err := meter.Float64Histogram("fees_payment_amount",
		metric.WithDescription("Committed payment amounts"),
		metric.WithExplicitBucketBoundaries(amountBuckets...))
	errs = append(errs, err)
	m.paymentAmount = hist

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// BillGenerated counts a committed bill
func (m *LedgerMetrics) BillGenerated(ctx context.Context) {
	if m == nil {
		return
	}
	m.billsGenerated.Add(ctx, 1)
}

// PaymentRecorded counts a committed payment and its amount
func (m *LedgerMetrics) PaymentRecorded(ctx context.Context, method string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method))
	m.paymentsRecorded.Add(ctx, 1, attrs)
	m.paymentAmount.Record(ctx, amount.InexactFloat64(), attrs)
}

// OverpaymentRejected counts a refused payment
func (m *LedgerMetrics) OverpaymentRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.overpayments.Add(ctx, 1)
}

// RetryableFailure counts a lock timeout, deadlock or exhausted retry for op
func (m *LedgerMetrics) RetryableFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.retryable.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// ReceiptIssued counts an issued receipt
func (m *LedgerMetrics) ReceiptIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.receiptsIssued.Add(ctx, 1)
}

// ReceiptNumberCollision counts a receipt number that was already taken
func (m *LedgerMetrics) ReceiptNumberCollision(ctx context.Context) {
	if m == nil {
		return
	}
	m.receiptCollisions.Add(ctx, 1)
}

// ConsistencyViolation counts an invariant failure
func (m *LedgerMetrics) ConsistencyViolation(ctx context.Context) {
	if m == nil {
		return
	}
	m.consistency.Add(ctx, 1)
}
