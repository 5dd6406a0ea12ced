/*
Package config loads process configuration from the environment.

PURPOSE:
  One Config value built at startup and passed explicitly to the commands
  that need it. Nothing here is global.

SOURCES (later wins):
  1. Defaults below
  2. An optional .env file (github.com/joho/godotenv); it never overrides
     variables already set in the environment
  3. The process environment
  4. cobra flags, applied by cmd/payrun after Load

KEYS:
  PAYRUN_DB               SQLite path (default payrun.db)
  PAYRUN_PORT             HTTP port (default 8080)
  PAYROLL_BASE_URL        Payroll API base URL
  PAYROLL_ACCESS_TOKEN    Bearer token for the payroll API
  PAYROLL_TENANT_ID       Tenant header value
  PAYRUN_REDIS_ADDR       host:port for cross-process locks; empty = in-process
  PAYRUN_CONCURRENCY      Parallel employee syncs, 1..16 (default 4)
  PAYRUN_HTTP_TIMEOUT     Per-call timeout, 10s..20s (default 15s)
  PAYRUN_RULESET_FILE     JSON ruleset book; empty = stored rulesets
  PAYRUN_SYNC_INTERVAL    Scheduler interval; 0 disables it
  PAYRUN_FUZZY_THRESHOLD  Name similarity needed for a fuzzy match (default 0.9)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the validated process configuration.
type Config struct {
	DBPath string `env:"PAYRUN_DB" validate:"required"`
	Port   int    `env:"PAYRUN_PORT" validate:"gte=1,lte=65535"`

	PayrollBaseURL     string `env:"PAYROLL_BASE_URL" validate:"omitempty,url"`
	PayrollAccessToken string `env:"PAYROLL_ACCESS_TOKEN"`
	PayrollTenantID    string `env:"PAYROLL_TENANT_ID"`

	RedisAddr      string        `env:"PAYRUN_REDIS_ADDR" validate:"omitempty,hostname_port"`
	Concurrency    int           `env:"PAYRUN_CONCURRENCY" validate:"gte=1,lte=16"`
	HTTPTimeout    time.Duration `env:"PAYRUN_HTTP_TIMEOUT" validate:"gte=10s,lte=20s"`
	RulesetFile    string        `env:"PAYRUN_RULESET_FILE" validate:"omitempty,file"`
	SyncInterval   time.Duration `env:"PAYRUN_SYNC_INTERVAL" validate:"gte=0s"`
	FuzzyThreshold float64       `env:"PAYRUN_FUZZY_THRESHOLD" validate:"gt=0,lte=1"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:         "payrun.db",
		Port:           8080,
		Concurrency:    4,
		HTTPTimeout:    15 * time.Second,
		FuzzyThreshold: 0.9,
	}
}

// ErrPayrollNotConfigured is returned by RequirePayroll.
var ErrPayrollNotConfigured = errors.New("payroll API not configured")

// Load reads envFile (if it exists) and the environment, then validates.
// An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
			log.Printf("[Config] %s not found, using the environment only", envFile)
		}
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	str("PAYRUN_DB", &cfg.DBPath)
	num("PAYRUN_PORT", &cfg.Port)
	str("PAYROLL_BASE_URL", &cfg.PayrollBaseURL)
	str("PAYROLL_ACCESS_TOKEN", &cfg.PayrollAccessToken)
	str("PAYROLL_TENANT_ID", &cfg.PayrollTenantID)
	str("PAYRUN_REDIS_ADDR", &cfg.RedisAddr)
	num("PAYRUN_CONCURRENCY", &cfg.Concurrency)
	dur("PAYRUN_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	str("PAYRUN_RULESET_FILE", &cfg.RulesetFile)
	dur("PAYRUN_SYNC_INTERVAL", &cfg.SyncInterval)
	if v, ok := lookup("PAYRUN_FUZZY_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PAYRUN_FUZZY_THRESHOLD: %q is not a number", v))
		} else {
			cfg.FuzzyThreshold = f
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

// Validate checks ranges and formats. Errors name the environment key.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), reason(fe)))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a URL"
	case "hostname_port":
		return "must be host:port"
	case "file":
		return "must be an existing file"
	default:
		return "failed " + fe.Tag()
	}
}

// RequirePayroll reports the missing payroll API keys, if any.
func (c Config) RequirePayroll() error {
	var missing []string
	if c.PayrollBaseURL == "" {
		missing = append(missing, "PAYROLL_BASE_URL")
	}
	if c.PayrollAccessToken == "" {
		missing = append(missing, "PAYROLL_ACCESS_TOKEN")
	}
	if c.PayrollTenantID == "" {
		missing = append(missing, "PAYROLL_TENANT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrPayrollNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// parseDuration accepts Go durations ("15s") and bare seconds ("15").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
