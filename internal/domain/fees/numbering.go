package fees

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefixes of generated identifiers
const (
	BillNumberPrefix    = "BILL"
	CashReferencePrefix = "TXN"
	ReceiptNumberPrefix = "RCP"
)

const randomTokenLength = 10

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// randomToken returns an upper-case base32 token drawn from a v4 UUID
func randomToken(n int) string {
	id := uuid.New()
	tok := tokenEncoding.EncodeToString(id[:])
	if n > len(tok) {
		n = len(tok)
	}
	return tok[:n]
}

// NewBillNumber returns BILL-YYYYMMDD-XXXXXXXXXX
func NewBillNumber(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", BillNumberPrefix, now.UTC().Format("20060102"), randomToken(randomTokenLength))
}

// NewCashReference returns TXN-YYYYMMDD-XXXXXXXXXX for cash payments
func NewCashReference(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", CashReferencePrefix, now.UTC().Format("20060102"), randomToken(randomTokenLength))
}

// IsCashReference reports whether ref has the generated cash reference shape
func IsCashReference(ref string) bool {
	return strings.HasPrefix(ref, CashReferencePrefix+"-")
}

// FormatReceiptNumber renders a receipt sequence value as RCP-YYYY-NNNNNNNN
func FormatReceiptNumber(issuedAt time.Time, seq int64) string {
	return fmt.Sprintf("%s-%d-%08d", ReceiptNumberPrefix, issuedAt.UTC().Year(), seq)
}
