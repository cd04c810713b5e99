package fees

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/school/feeledger/internal/domain/fees"
	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// LedgerService records payments against bills. Every payment runs in one
// transaction holding the bill's row lock, so concurrent payments on a bill
// apply in commit order and none is lost.
type LedgerService struct {
	deps
	ledger fees.LedgerRepository
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(ledger fees.LedgerRepository, opts ...Option) *LedgerService {
	return &LedgerService{
		deps:   newDeps(opts),
		ledger: ledger,
	}
}

// RecordPayment applies a payment to its bill.
//
// Under the bill lock it re-reads the bill, rejects amounts above the
// balance, inserts the payment, derives paid, balance and status, checks that
// the bill's paid amount equals the sum of its payments and persists the bill
// together with a PaymentRecorded event. Any failure rolls everything back.
func (s *LedgerService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "record_payment",
		telemetry.AttrBillID, in.BillID.String(),
		telemetry.AttrAmount, in.Amount.String(),
		telemetry.AttrMethod, in.Method.String(),
	)
	defer span.End()

	payment, err := fees.NewPayment(fees.PaymentParams{
		BillID:      in.BillID,
		StudentID:   in.StudentID,
		PaymentDate: in.PaymentDate,
		Amount:      in.Amount,
		Method:      in.Method,
		Reference:   in.Reference,
		ReceivedBy:  in.ReceivedBy,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var committed fees.BillSnapshot
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerLabels("record_payment", "method", in.Method.String()), func(c context.Context) {
		err = s.ledger.WithLockedBill(c, in.BillID, func(tx fees.LedgerTx, bill *fees.Bill) error {
			if err := s.apply(c, tx, bill, payment, in.StudentID); err != nil {
				return err
			}
			committed = bill.Snapshot()
			return nil
		})
	})
	if err != nil {
		s.recordFailure(ctx, in, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.AttrPaymentID, payment.ID.String())
	s.metrics.PaymentRecorded(ctx, payment.Method.String(), payment.AmountPaid)
	s.logger.Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("bill_id", committed.BillID.String()),
		zap.String("amount", money(payment.AmountPaid)),
		zap.String("method", payment.Method.String()),
		zap.String("reference", payment.TransactionReference),
		zap.String("balance", money(committed.Balance)),
		zap.String("status", committed.Status.String()),
		zap.Int("version", committed.Version),
	)

	resp := ToPaymentResponse(payment)
	resp.Bill = &BillBalanceResponse{
		ID:          committed.BillID,
		TotalAmount: money(committed.TotalAmount),
		PaidAmount:  money(committed.PaidAmount),
		Balance:     money(committed.Balance),
		Status:      committed.Status.String(),
		Version:     committed.Version,
	}
	return &resp, nil
}

func (s *LedgerService) apply(ctx context.Context, tx fees.LedgerTx, bill *fees.Bill, payment *fees.Payment, studentID uuid.UUID) error {
	if studentID != uuid.Nil && studentID != bill.StudentID {
		return fees.NewValidationError("student_id", "does not match the bill's student")
	}
	payment.StudentID = bill.StudentID

	if payment.AmountPaid.GreaterThan(bill.Balance) {
		return &fees.OverpaymentError{BillID: bill.ID, Amount: payment.AmountPaid, Balance: bill.Balance}
	}

	if err := s.insertPayment(ctx, tx, payment); err != nil {
		return err
	}
	if err := bill.ApplyPayment(payment); err != nil {
		return err
	}

	sum, err := tx.SumPayments(ctx, bill.ID)
	if err != nil {
		return err
	}
	if err := bill.CheckInvariants(sum); err != nil {
		return err
	}
	return tx.UpdateBill(ctx, bill)
}

// insertPayment inserts the payment, generating a fresh cash reference on
// each collision up to the configured number of attempts
func (s *LedgerService) insertPayment(ctx context.Context, tx fees.LedgerTx, payment *fees.Payment) error {
	if payment.Method != fees.PaymentMethodCash {
		exists, err := tx.ReferenceExists(ctx, payment.TransactionReference)
		if err != nil {
			return err
		}
		if exists {
			return duplicateReference()
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			if errors.Is(err, fees.ErrReferenceTaken) {
				return duplicateReference()
			}
			return err
		}
		return nil
	}

	for attempt := 1; attempt <= s.settings.ReferenceMaxAttempts; attempt++ {
		payment.AssignReference(fees.NewCashReference(s.now()))
		exists, err := tx.ReferenceExists(ctx, payment.TransactionReference)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		err = tx.InsertPayment(ctx, payment)
		if !errors.Is(err, fees.ErrReferenceTaken) {
			return err
		}
		s.logger.Warn("Cash reference collision, regenerating",
			zap.String("reference", payment.TransactionReference),
			zap.Int("attempt", attempt),
		)
	}
	return fees.NewRetryableError("generate cash reference", fees.ErrReferenceTaken)
}

func duplicateReference() error {
	return fees.NewValidationError("reference", "this transaction reference has already been recorded")
}

func (s *LedgerService) recordFailure(ctx context.Context, in RecordPaymentInput, err error) {
	var (
		over  *fees.OverpaymentError
		retry *fees.RetryableError
		cons  *fees.ConsistencyError
	)
	switch {
	case errors.As(err, &over):
		s.metrics.OverpaymentRejected(ctx)
		s.logger.Info("Payment rejected: overpayment",
			zap.String("bill_id", in.BillID.String()),
			zap.String("amount", money(over.Amount)),
			zap.String("balance", money(over.Balance)),
		)
	case errors.As(err, &retry):
		s.metrics.RetryableFailure(ctx, "record_payment")
		s.logger.Warn("Payment aborted, retryable",
			zap.String("bill_id", in.BillID.String()),
			zap.String("op", retry.Op),
			zap.Error(err),
		)
	case errors.As(err, &cons):
		s.metrics.ConsistencyViolation(ctx)
		s.logger.Error("Ledger consistency violation, payment rolled back",
			zap.String("bill_id", cons.BillID.String()),
			zap.String("detail", cons.Detail),
		)
	}
}
