package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	AppName    string
	AppVersion string
	Env        string
	LogLevel   string
	HTTPAddr   string

	Database  DatabaseConfig
	Redis     RedisConfig
	Renewal   RenewalConfig
	AutoRenew AutoRenewConfig
	Payment   PaymentConfig
	Tracing   TracingConfig
}

type DatabaseConfig struct {
	Type            string // postgres or sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RenewalConfig struct {
	TaxRate decimal.Decimal
	LockTTL time.Duration
}

type AutoRenewConfig struct {
	Enabled  bool
	Schedule string
	LeadDays int
}

type PaymentConfig struct {
	Provider        string
	ManualMaxAmount decimal.Decimal
}

const (
	OTLPProtocolHTTP = "http/protobuf"
	OTLPProtocolGRPC = "grpc"
)

type TracingConfig struct {
	OTLPEndpoint string
	OTLPProtocol string
}

var (
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
	ErrInvalidDBType    = errors.New("invalid_db_type")
	ErrInvalidLeadDays  = errors.New("invalid_autorenew_lead_days")
	ErrInvalidMaxAmount = errors.New("invalid_payment_max_amount")
	ErrInvalidProtocol  = errors.New("invalid_otlp_protocol")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "renewal")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")

	v.SetDefault("DB_TYPE", "postgres")
	v.SetDefault("DB_DSN", "host=localhost user=postgres password=postgres dbname=renewal port=5432 sslmode=disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RENEWAL_TAX_RATE", "0.10")
	v.SetDefault("RENEWAL_LOCK_TTL", "30s")

	v.SetDefault("AUTORENEW_ENABLED", true)
	v.SetDefault("AUTORENEW_SCHEDULE", "@every 1h")
	v.SetDefault("AUTORENEW_LEAD_DAYS", 1)

	v.SetDefault("PAYMENT_PROVIDER", "manual")
	v.SetDefault("PAYMENT_MANUAL_MAX_AMOUNT", "0")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", OTLPProtocolHTTP)
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	taxRate, err := decimal.NewFromString(strings.TrimSpace(v.GetString("RENEWAL_TAX_RATE")))
	if err != nil || taxRate.IsNegative() {
		return Config{}, fmt.Errorf("RENEWAL_TAX_RATE: %w", ErrInvalidTaxRate)
	}

	maxAmount, err := decimal.NewFromString(strings.TrimSpace(v.GetString("PAYMENT_MANUAL_MAX_AMOUNT")))
	if err != nil || maxAmount.IsNegative() {
		return Config{}, fmt.Errorf("PAYMENT_MANUAL_MAX_AMOUNT: %w", ErrInvalidMaxAmount)
	}

	dbType := strings.ToLower(strings.TrimSpace(v.GetString("DB_TYPE")))
	switch dbType {
	case "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("DB_TYPE %q: %w", dbType, ErrInvalidDBType)
	}

	leadDays := v.GetInt("AUTORENEW_LEAD_DAYS")
	if leadDays < 0 {
		return Config{}, fmt.Errorf("AUTORENEW_LEAD_DAYS: %w", ErrInvalidLeadDays)
	}

	protocol := strings.ToLower(strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")))
	switch protocol {
	case OTLPProtocolHTTP, OTLPProtocolGRPC:
	default:
		return Config{}, fmt.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL %q: %w", protocol, ErrInvalidProtocol)
	}

	return Config{
		AppName:    v.GetString("APP_NAME"),
		AppVersion: v.GetString("APP_VERSION"),
		Env:        strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:   v.GetString("LOG_LEVEL"),
		HTTPAddr:   v.GetString("HTTP_ADDR"),
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Renewal: RenewalConfig{
			TaxRate: taxRate,
			LockTTL: v.GetDuration("RENEWAL_LOCK_TTL"),
		},
		AutoRenew: AutoRenewConfig{
			Enabled:  v.GetBool("AUTORENEW_ENABLED"),
			Schedule: strings.TrimSpace(v.GetString("AUTORENEW_SCHEDULE")),
			LeadDays: leadDays,
		},
		Payment: PaymentConfig{
			Provider:        strings.ToLower(strings.TrimSpace(v.GetString("PAYMENT_PROVIDER"))),
			ManualMaxAmount: maxAmount,
		},
		Tracing: TracingConfig{
			OTLPEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			OTLPProtocol: protocol,
		},
	}, nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}
