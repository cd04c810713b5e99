// Package config loads the ledger service settings from config.toml and
// FEES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/school/feeledger/internal/domain/shared/valueobject"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. FEES_DATABASE_PASSWORD
const EnvPrefix = "FEES"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Event     EventConfig     `mapstructure:"event"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Printing  PrintingConfig  `mapstructure:"printing"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether production safeguards apply
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int `mapstructure:"conn_max_idle_time"` // minutes

	SlowQuery      time.Duration `mapstructure:"slow_query"`
	MigrationsPath string        `mapstructure:"migrations_path"`
}

// DSN returns a postgres URL with user and password escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// Required disables the in-memory fallback when Redis is unreachable
	Required bool `mapstructure:"required"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	// AllowHeaderIdentity accepts X-User-ID without a token. Development only.
	AllowHeaderIdentity bool `mapstructure:"allow_header_identity"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type HTTPConfig struct {
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	MaxBodySize      int64         `mapstructure:"max_body_size"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
	TrustedProxies   []string      `mapstructure:"trusted_proxies"`

	// SwaggerEnabled serves the API docs at /swagger, restricted to
	// SwaggerAllowedIPs when that list is non-empty
	SwaggerEnabled    bool     `mapstructure:"swagger_enabled"`
	SwaggerAllowedIPs []string `mapstructure:"swagger_allowed_ips"`
}

// EventConfig tunes the outbox processor
type EventConfig struct {
	ProcessorEnabled bool          `mapstructure:"processor_enabled"`
	BatchSize        int           `mapstructure:"batch_size"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxRetries       int           `mapstructure:"max_retries"`
	CleanupRetention time.Duration `mapstructure:"cleanup_retention"`
	IdempotencyTTL   time.Duration `mapstructure:"idempotency_ttl"`

	// ProcessingTimeout is how long a claimed entry may stay PROCESSING
	// before another poll releases it for redelivery
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
}

// LedgerConfig holds payment and receipt settings
type LedgerConfig struct {
	Currency string `mapstructure:"currency"`
	// LockTimeout bounds the wait for a bill row lock before a payment fails
	// as retryable
	LockTimeout          time.Duration `mapstructure:"lock_timeout"`
	ReceiptMaxAttempts   int           `mapstructure:"receipt_max_attempts"`
	ReferenceMaxAttempts int           `mapstructure:"reference_max_attempts"`
	BillNumberAttempts   int           `mapstructure:"bill_number_attempts"`
	IdempotencyTTL       time.Duration `mapstructure:"idempotency_ttl"`
	SchoolName           string        `mapstructure:"school_name"`
	SchoolAddress        string        `mapstructure:"school_address"`
}

// StorageConfig points at the S3-compatible bucket for export archives
type StorageConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Endpoint          string        `mapstructure:"endpoint"`
	Region            string        `mapstructure:"region"`
	Bucket            string        `mapstructure:"bucket"`
	AccessKey         string        `mapstructure:"access_key"`
	SecretKey         string        `mapstructure:"secret_key"`
	UseSSL            bool          `mapstructure:"use_ssl"`
	UsePathStyle      bool          `mapstructure:"use_path_style"`
	PresignExpiration time.Duration `mapstructure:"presign_expiration"`
	ExportPrefix      string        `mapstructure:"export_prefix"`
}

// PrintingConfig controls receipt PDF rendering
type PrintingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ChromeURL     string        `mapstructure:"chrome_url"` // empty launches a local Chrome
	NoSandbox     bool          `mapstructure:"no_sandbox"`
	RenderTimeout time.Duration `mapstructure:"render_timeout"`
	Locale        string        `mapstructure:"locale"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"`
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogExportEnabled  bool          `mapstructure:"log_export_enabled"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"`
	ProfilingEnabled  bool          `mapstructure:"profiling_enabled"`
	ProfilingServer   string        `mapstructure:"profiling_server"`
}

// defaults lists every key. Viper only applies environment overrides
// during Unmarshal to keys it knows, so secrets default to "" here too.
var defaults = map[string]any{
	"app.name": "feeledger",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "feeledger",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  60,
	"database.conn_max_idle_time": 30,
	"database.slow_query":         200 * time.Millisecond,
	"database.migrations_path":    "migrations",

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,
	"redis.required": false,

	"jwt.secret":                "",
	"jwt.issuer":                "feeledger",
	"jwt.allow_header_identity": false,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":        15 * time.Second,
	"http.write_timeout":       60 * time.Second,
	"http.idle_timeout":        60 * time.Second,
	"http.shutdown_timeout":    30 * time.Second,
	"http.request_timeout":     30 * time.Second,
	"http.max_header_bytes":    1 << 20,
	"http.max_body_size":       1 << 20,
	"http.cors_allow_origins":  []string{},
	"http.trusted_proxies":     []string{},
	"http.swagger_enabled":     true,
	"http.swagger_allowed_ips": []string{},

	"event.processor_enabled":  true,
	"event.batch_size":         100,
	"event.poll_interval":      2 * time.Second,
	"event.max_retries":        5,
	"event.cleanup_retention":  7 * 24 * time.Hour,
	"event.idempotency_ttl":    24 * time.Hour,
	"event.processing_timeout": 5 * time.Minute,

	"ledger.currency":               "UGX",
	"ledger.lock_timeout":           5 * time.Second,
	"ledger.receipt_max_attempts":   5,
	"ledger.reference_max_attempts": 5,
	"ledger.bill_number_attempts":   3,
	"ledger.idempotency_ttl":        24 * time.Hour,
	"ledger.school_name":            "School",
	"ledger.school_address":         "",

	"storage.enabled":            false,
	"storage.endpoint":           "",
	"storage.region":             "us-east-1",
	"storage.bucket":             "",
	"storage.access_key":         "",
	"storage.secret_key":         "",
	"storage.use_ssl":            true,
	"storage.use_path_style":     false,
	"storage.presign_expiration": 15 * time.Minute,
	"storage.export_prefix":      "exports/payments",

	"printing.enabled":        false,
	"printing.chrome_url":     "",
	"printing.no_sandbox":     false,
	"printing.render_timeout": 30 * time.Second,
	"printing.locale":         "en",

	"telemetry.enabled":            false,
	"telemetry.collector_endpoint": "localhost:4317",
	"telemetry.sampling_ratio":     1.0,
	"telemetry.service_name":       "",
	"telemetry.insecure":           true,
	"telemetry.metrics_interval":   30 * time.Second,
	"telemetry.log_export_enabled": false,
	"telemetry.db_trace_enabled":   true,
	"telemetry.db_log_full_sql":    false,
	"telemetry.profiling_enabled":  false,
	"telemetry.profiling_server":   "http://localhost:4040",
}

// Load reads ./config.toml or /etc/feeledger/config.toml when present.
// FEES_<SECTION>_<KEY> variables override the file, which overrides the
// defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/feeledger")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	db := c.Database
	switch {
	case db.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	}

	if c.Ledger.LockTimeout < 0 {
		return errors.New("ledger.lock_timeout cannot be negative")
	}
	if c.Ledger.ReceiptMaxAttempts < 1 || c.Ledger.ReferenceMaxAttempts < 1 || c.Ledger.BillNumberAttempts < 1 {
		return errors.New("ledger retry attempts must be at least 1")
	}
	currency, err := valueobject.ParseCurrency(c.Ledger.Currency)
	if err != nil {
		return fmt.Errorf("ledger.currency %q: %w", c.Ledger.Currency, err)
	}
	c.Ledger.Currency = string(currency)

	if c.Event.PollInterval <= 0 {
		return errors.New("event.poll_interval must be positive")
	}
	if c.Event.ProcessingTimeout <= c.Event.PollInterval {
		return fmt.Errorf("event.processing_timeout (%s) must exceed event.poll_interval (%s)",
			c.Event.ProcessingTimeout, c.Event.PollInterval)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when storage is enabled")
	}
	if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", r)
	}

	if c.App.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

// validateProduction refuses settings that are only safe on a laptop
func (c *Config) validateProduction() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret is required in production")
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.JWT.AllowHeaderIdentity:
		return errors.New("jwt.allow_header_identity must be false in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case slices.Contains(c.HTTP.CORSAllowOrigins, "*"):
		return errors.New("http.cors_allow_origins cannot contain '*' in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	return nil
}
