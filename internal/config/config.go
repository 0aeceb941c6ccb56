package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"enrollment-reconciler/internal/tenant"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Mode gates side effects. TEST never touches the production ledger and
// never sends mail.
type Mode string

const (
	ModeTest       Mode = "TEST"
	ModeProduction Mode = "PRODUCTION"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Storefront MySQLConfig
	LMS        LMSConfig
	Ledger     LedgerConfig
	Gateway    GatewayConfig
	SMTP       SMTPConfig
	Redis      RedisConfig
	Server     ServerConfig
	Tenants    []tenant.Config

	// ModeFallback is set when app.mode held an unknown value and PRODUCTION was assumed.
	ModeFallback string
}

type AppConfig struct {
	Mode           Mode
	Timezone       string
	TestOutputFile string
	// BankTransferStatuses are the storefront statuses scanned for manual transfers.
	BankTransferStatuses []string
}

// Location loads the configured timezone.
func (a AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// MySQLConfig describes one MySQL server hosting several logical databases.
type MySQLConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LMSConfig is the learning platform server plus its schema conventions.
type LMSConfig struct {
	MySQLConfig
	TablePrefix     string
	FiscalCodeField string
}

type LedgerConfig struct {
	URL string
}

type GatewayConfig struct {
	Environment    string // sandbox, live
	BaseURL        string
	ClientID       string
	Secret         string
	PageSize       int
	MaxPages       int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Lookback       time.Duration
}

// Enabled reports whether gateway credentials are configured.
func (g GatewayConfig) Enabled() bool {
	return g.ClientID != "" && g.Secret != ""
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	To       []string
	Cc       []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type ServerConfig struct {
	Port           string
	JWTSecret      string
	AllowedOrigins string
}

// Load reads configuration. Priority (highest to lowest):
// 1. Environment variables with RECONCILER_ prefix (e.g., RECONCILER_LEDGER_DB_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reconciler")

	setDefaults(v)

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return build(v)
}

// LoadFile reads a specific TOML file without environment overrides. Used by tests and tools.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.mode", string(ModeProduction))
	v.SetDefault("app.timezone", "Europe/Rome")
	v.SetDefault("app.test_output_file", "logs/ledger_test_output.csv")
	v.SetDefault("app.bank_transfer_statuses", []string{"wc-processing", "wc-completed"})

	v.SetDefault("log.level", "")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	for _, section := range []string{"storefront_db", "lms_db"} {
		v.SetDefault(section+".host", "127.0.0.1")
		v.SetDefault(section+".port", 3306)
		v.SetDefault(section+".connect_timeout", "10s")
		v.SetDefault(section+".read_timeout", "30s")
		v.SetDefault(section+".max_open_conns", 5)
		v.SetDefault(section+".max_idle_conns", 2)
		v.SetDefault(section+".conn_max_lifetime", "5m")
	}
	v.SetDefault("lms_db.table_prefix", "mdl_")
	v.SetDefault("lms_db.fiscal_code_field", "CF")

	v.SetDefault("gateway.environment", "live")
	v.SetDefault("gateway.page_size", 100)
	v.SetDefault("gateway.max_pages", 50)
	v.SetDefault("gateway.connect_timeout", "10s")
	v.SetDefault("gateway.request_timeout", "30s")
	v.SetDefault("gateway.lookback", "48h")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("redis.lock_ttl", "30m")

	v.SetDefault("server.port", "8080")
}

type tenantEntry struct {
	Key                 string `mapstructure:"key"`
	StorefrontDB        string `mapstructure:"storefront_db"`
	TablePrefix         string `mapstructure:"table_prefix"`
	LedgerDB            string `mapstructure:"ledger_db"`
	FiscalCodeAttribute string `mapstructure:"fiscal_code_attribute"`
	Source              string `mapstructure:"source"`
	InvoicePrefix       string `mapstructure:"invoice_prefix"`
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Mode:                 Mode(strings.ToUpper(strings.TrimSpace(v.GetString("app.mode")))),
			Timezone:             v.GetString("app.timezone"),
			TestOutputFile:       v.GetString("app.test_output_file"),
			BankTransferStatuses: v.GetStringSlice("app.bank_transfer_statuses"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Storefront: mysqlSection(v, "storefront_db"),
		LMS: LMSConfig{
			MySQLConfig:     mysqlSection(v, "lms_db"),
			TablePrefix:     v.GetString("lms_db.table_prefix"),
			FiscalCodeField: v.GetString("lms_db.fiscal_code_field"),
		},
		Ledger: LedgerConfig{
			URL: v.GetString("ledger_db.url"),
		},
		Gateway: GatewayConfig{
			Environment:    v.GetString("gateway.environment"),
			BaseURL:        v.GetString("gateway.base_url"),
			ClientID:       v.GetString("gateway.client_id"),
			Secret:         v.GetString("gateway.secret"),
			PageSize:       v.GetInt("gateway.page_size"),
			MaxPages:       v.GetInt("gateway.max_pages"),
			ConnectTimeout: v.GetDuration("gateway.connect_timeout"),
			RequestTimeout: v.GetDuration("gateway.request_timeout"),
			Lookback:       v.GetDuration("gateway.lookback"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
			FromName: v.GetString("smtp.from_name"),
			To:       v.GetStringSlice("smtp.to"),
			Cc:       v.GetStringSlice("smtp.cc"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			LockTTL:  v.GetDuration("redis.lock_ttl"),
		},
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			JWTSecret:      v.GetString("server.jwt_secret"),
			AllowedOrigins: v.GetString("server.allowed_origins"),
		},
	}

	switch cfg.App.Mode {
	case ModeTest, ModeProduction:
	default:
		cfg.ModeFallback = string(cfg.App.Mode)
		cfg.App.Mode = ModeProduction
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
		if cfg.App.Mode == ModeTest {
			cfg.Log.Level = "debug"
		}
	}

	var entries []tenantEntry
	if err := v.UnmarshalKey("tenants", &entries); err != nil {
		return nil, fmt.Errorf("invalid tenants section: %w", err)
	}
	for _, e := range entries {
		cfg.Tenants = append(cfg.Tenants, tenant.Config{
			Key:                 e.Key,
			StorefrontDB:        e.StorefrontDB,
			TablePrefix:         e.TablePrefix,
			LedgerDB:            e.LedgerDB,
			FiscalCodeAttribute: e.FiscalCodeAttribute,
			Source:              tenant.SourceKind(strings.ToLower(e.Source)),
			InvoicePrefix:       e.InvoicePrefix,
		})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mysqlSection(v *viper.Viper, section string) MySQLConfig {
	return MySQLConfig{
		Host:            v.GetString(section + ".host"),
		Port:            v.GetInt(section + ".port"),
		User:            v.GetString(section + ".user"),
		Password:        v.GetString(section + ".password"),
		ConnectTimeout:  v.GetDuration(section + ".connect_timeout"),
		ReadTimeout:     v.GetDuration(section + ".read_timeout"),
		MaxOpenConns:    v.GetInt(section + ".max_open_conns"),
		MaxIdleConns:    v.GetInt(section + ".max_idle_conns"),
		ConnMaxLifetime: v.GetDuration(section + ".conn_max_lifetime"),
	}
}

// Validate checks cross-field constraints that defaults cannot cover.
func (c *Config) Validate() error {
	if _, err := c.App.Location(); err != nil {
		return err
	}
	if c.App.Mode == ModeTest && c.App.TestOutputFile == "" {
		return fmt.Errorf("app.test_output_file is required in %s mode", ModeTest)
	}
	if c.Gateway.ConnectTimeout <= 0 || c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("gateway timeouts must be positive")
	}
	if c.Gateway.PageSize <= 0 || c.Gateway.MaxPages <= 0 {
		return fmt.Errorf("gateway page_size and max_pages must be positive")
	}
	if _, err := tenant.NewRegistry(c.Tenants); err != nil {
		return fmt.Errorf("invalid tenants section: %w", err)
	}
	return nil
}

// GatewayBaseURL resolves the reporting API host for the configured environment.
func (g GatewayConfig) GatewayBaseURL() string {
	if g.BaseURL != "" {
		return strings.TrimRight(g.BaseURL, "/")
	}
	if strings.EqualFold(g.Environment, "sandbox") {
		return "https://api-m.sandbox.paypal.com"
	}
	return "https://api-m.paypal.com"
}
