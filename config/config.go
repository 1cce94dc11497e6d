package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig controls the virtual ledger read paths.
type LedgerConfig struct {
	// Strict makes reads fail with NotFound for users without a wallet
	// instead of creating one.
	Strict              bool `mapstructure:"strict"`
	HistoryDefaultLimit int  `mapstructure:"history_default_limit"`
	HistoryMaxLimit     int  `mapstructure:"history_max_limit"`
}

// SettlementConfig controls batching thresholds and the background scheduler.
type SettlementConfig struct {
	Threshold       int64         `mapstructure:"threshold"`
	FeeRate         string        `mapstructure:"fee_rate"` // decimal string, e.g. "0.01"
	NaiveUnitAmount int64         `mapstructure:"naive_unit_amount"`
	Provider        string        `mapstructure:"provider"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	RecoveryBatch   int           `mapstructure:"recovery_batch"`
	WorkerEnabled   bool          `mapstructure:"worker_enabled"`
}

type GatewayConfig struct {
	Sandbox            bool          `mapstructure:"sandbox"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	SandboxLatency     time.Duration `mapstructure:"sandbox_latency"`
	SandboxRejectAbove int64         `mapstructure:"sandbox_reject_above"` // 0 = never reject
	CallbackSecret     string        `mapstructure:"callback_secret"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	MTN                MTNConfig     `mapstructure:"mtn"`
}

// MTNConfig holds MTN MoMo Open API credentials.
type MTNConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	SubscriptionKey   string `mapstructure:"subscription_key"`
	APIUser           string `mapstructure:"api_user"`
	APIKey            string `mapstructure:"api_key"`
	TargetEnvironment string `mapstructure:"target_environment"`
	Currency          string `mapstructure:"currency"`
	PayerPrefix       string `mapstructure:"payer_prefix"`
}

// Configured reports whether enough credentials are present to call the live API.
func (m MTNConfig) Configured() bool {
	return m.BaseURL != "" && m.SubscriptionKey != "" && m.APIUser != "" && m.APIKey != ""
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// NotifyConfig points settlement outcome notifications at a downstream consumer.
type NotifyConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SVL_ (Savings Ledger).
// Nested keys use underscore: SVL_DATABASE_HOST, SVL_SETTLEMENT_THRESHOLD, etc.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "savings_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "savings-ledger")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.strict", false)
	v.SetDefault("ledger.history_default_limit", 50)
	v.SetDefault("ledger.history_max_limit", 200)
	v.SetDefault("settlement.threshold", 5000)
	v.SetDefault("settlement.fee_rate", "0.01")
	v.SetDefault("settlement.naive_unit_amount", 500)
	v.SetDefault("settlement.provider", "MTN")
	v.SetDefault("settlement.scan_interval", "15m")
	v.SetDefault("settlement.sweep_interval", "168h")
	v.SetDefault("settlement.run_timeout", "5m")
	v.SetDefault("settlement.lock_ttl", "2m")
	v.SetDefault("settlement.stale_after", "10m")
	v.SetDefault("settlement.recovery_batch", 50)
	v.SetDefault("settlement.worker_enabled", true)
	v.SetDefault("gateway.sandbox", true)
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.base_delay", "1s")
	v.SetDefault("gateway.request_timeout", "15s")
	v.SetDefault("gateway.sandbox_latency", "100ms")
	v.SetDefault("gateway.sandbox_reject_above", 0)
	v.SetDefault("gateway.callback_secret", "")
	v.SetDefault("gateway.idempotency_ttl", "24h")
	v.SetDefault("gateway.mtn.base_url", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("gateway.mtn.target_environment", "sandbox")
	v.SetDefault("gateway.mtn.currency", "XAF")
	v.SetDefault("gateway.mtn.payer_prefix", "237")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "settlement.completed")
	v.SetDefault("notify.url", "")
	v.SetDefault("notify.secret", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SVL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SVL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
