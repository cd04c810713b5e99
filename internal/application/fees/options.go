// Package fees holds the billing, payment ledger and receipt application
// services. Services are stateless over the domain repositories; the acting
// user is always passed in explicitly.
package fees

import (
	"time"

	"github.com/school/feeledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Settings are the tunables shared by the ledger services
type Settings struct {
	ReceiptMaxAttempts   int
	ReferenceMaxAttempts int
	BillNumberAttempts   int
	Currency             string
	SchoolName           string
	SchoolAddress        string
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		ReceiptMaxAttempts:   5,
		ReferenceMaxAttempts: 5,
		BillNumberAttempts:   3,
		Currency:             "UGX",
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.ReceiptMaxAttempts < 1 {
		s.ReceiptMaxAttempts = d.ReceiptMaxAttempts
	}
	if s.ReferenceMaxAttempts < 1 {
		s.ReferenceMaxAttempts = d.ReferenceMaxAttempts
	}
	if s.BillNumberAttempts < 1 {
		s.BillNumberAttempts = d.BillNumberAttempts
	}
	if s.Currency == "" {
		s.Currency = d.Currency
	}
	return s
}

// Option configures a service
type Option func(*deps)

type deps struct {
	logger   *zap.Logger
	metrics  *telemetry.LedgerMetrics
	settings Settings
	now      func() time.Time
}

func newDeps(opts []Option) deps {
	d := deps{
		logger:   zap.NewNop(),
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	d.settings = d.settings.withDefaults()
	return d
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *deps) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the ledger instruments. A nil value disables recording.
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(d *deps) {
		d.metrics = m
	}
}

// WithSettings overrides the ledger settings; zero fields keep their defaults
func WithSettings(s Settings) Option {
	return func(d *deps) {
		d.settings = s
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}
