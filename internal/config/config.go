package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dagdev/vpnbill/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment     DeploymentConfig     `mapstructure:"deployment"`
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Provisioning   ProvisioningConfig   `mapstructure:"provisioning"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Reminders      RemindersConfig      `mapstructure:"reminders"`
	Telegram       TelegramConfig       `mapstructure:"telegram"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	API            APIConfig            `mapstructure:"api"`
	Sentry         SentryConfig         `mapstructure:"sentry"`
	Tariffs        []types.Tariff       `mapstructure:"tariffs" validate:"dive"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required,oneof=local api worker"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host" validate:"required"`
	Port                   int    `mapstructure:"port" validate:"required"`
	User                   string `mapstructure:"user" validate:"required"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname" validate:"required"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

// ProvisioningConfig points at the VPN panel API.
// Credential is either an opaque bearer token or a "username:password" pair.
type ProvisioningConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	Credential    string        `mapstructure:"credential"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"required"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"required,min=1,max=10"`
	RetryWaitUnit time.Duration `mapstructure:"retry_wait_unit" validate:"required"`
}

type ReconciliationConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TickInterval  time.Duration `mapstructure:"tick_interval" validate:"required"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"required,min=1"`
	BaseDelay     time.Duration `mapstructure:"base_delay" validate:"required"`
	MaxDelay      time.Duration `mapstructure:"max_delay" validate:"required,gtefield=BaseDelay"`
	InFlightGrace time.Duration `mapstructure:"in_flight_grace"`
}

// RemindersConfig drives the expiry reminder job. Days lists how many days
// before expiry a payer is reminded.
type RemindersConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"required"`
	Days     []int         `mapstructure:"days" validate:"dive,min=1"`
}

type TelegramConfig struct {
	Token                string        `mapstructure:"token"`
	AdminIDs             []int64       `mapstructure:"admin_ids"`
	PaymentProviderToken string        `mapstructure:"payment_provider_token"`
	PollTimeout          int           `mapstructure:"poll_timeout"`
	NotifyRatePerSecond  float64       `mapstructure:"notify_rate_per_second"`
	SendTimeout          time.Duration `mapstructure:"send_timeout"`
}

type PaymentConfig struct {
	Currency      string `mapstructure:"currency" validate:"required,len=3"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type APIConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/vpnbill")

	v.SetEnvPrefix("VPNBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "vpnbill")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "vpnbill")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)

	v.SetDefault("provisioning.base_url", "http://localhost:8000")
	v.SetDefault("provisioning.credential", "")
	v.SetDefault("provisioning.timeout", 15*time.Second)
	v.SetDefault("provisioning.max_attempts", 3)
	v.SetDefault("provisioning.retry_wait_unit", time.Second)

	v.SetDefault("reconciliation.enabled", true)
	v.SetDefault("reconciliation.tick_interval", 45*time.Second)
	v.SetDefault("reconciliation.max_attempts", 5)
	v.SetDefault("reconciliation.base_delay", 30*time.Second)
	v.SetDefault("reconciliation.max_delay", 900*time.Second)
	v.SetDefault("reconciliation.in_flight_grace", 2*time.Minute)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.interval", time.Hour)
	v.SetDefault("reminders.days", []int{3, 1})

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_ids", []int64{})
	v.SetDefault("telegram.payment_provider_token", "")
	v.SetDefault("telegram.poll_timeout", 60)
	v.SetDefault("telegram.notify_rate_per_second", 20)
	v.SetDefault("telegram.send_timeout", 10*time.Second)

	v.SetDefault("payment.currency", "RUB")
	v.SetDefault("payment.webhook_secret", "")
	v.SetDefault("api.admin_key", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Provisioning: ProvisioningConfig{
			Timeout:       15 * time.Second,
			MaxAttempts:   3,
			RetryWaitUnit: time.Second,
		},
		Reconciliation: ReconciliationConfig{
			Enabled:       true,
			TickInterval:  45 * time.Second,
			MaxAttempts:   5,
			BaseDelay:     30 * time.Second,
			MaxDelay:      900 * time.Second,
			InFlightGrace: 2 * time.Minute,
		},
		Reminders: RemindersConfig{
			Enabled:  true,
			Interval: time.Hour,
			Days:     []int{3, 1},
		},
		Payment: PaymentConfig{Currency: "RUB"},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// CanRefreshToken reports whether the credential is a username:password pair
// that can be exchanged for a fresh bearer token.
func (c ProvisioningConfig) CanRefreshToken() bool {
	return strings.Contains(c.Credential, ":")
}
