package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-upi-reconciler/internal/balance"
)

// Nonce store backends.
const (
	NonceBackendDynamo = "dynamodb"
	NonceBackendRedis  = "redis"
)

// App is the configuration shared by every binary.
type App struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	RunLocal    bool   `yaml:"run_local"`
	LogLevel    string `yaml:"log_level"`

	SessionExpiryMinutes int `yaml:"session_expiry_minutes"`
	NonceTTLMinutes      int `yaml:"nonce_ttl_minutes"`

	Balance BalanceConfig `yaml:"balance"`
	UPI     UPIConfig     `yaml:"upi"`
	Tables  TablesConfig  `yaml:"tables"`

	OrdersQueueURL   string `yaml:"orders_queue_url"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	NonceBackend     string `yaml:"nonce_backend"`
	RedisURL         string `yaml:"redis_url"`
	LocalDBPath      string `yaml:"local_db_path"`
}

// BalanceConfig configures the wallet balance provider.
type BalanceConfig struct {
	APIURL          string `yaml:"api_url"`
	Auth            string `yaml:"auth"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	SnapshotRetries int    `yaml:"snapshot_retries"`
}

// UPIConfig is the merchant's receiving identity.
type UPIConfig struct {
	ID        string `yaml:"id"`
	PayeeName string `yaml:"payee_name"`
}

// TablesConfig names the DynamoDB tables.
type TablesConfig struct {
	Nonces   string `yaml:"nonces"`
	Sessions string `yaml:"sessions"`
	Orders   string `yaml:"orders"`
	Logs     string `yaml:"logs"`
}

// Default returns the configuration used before any file or env is applied.
func Default() *App {
	return &App{
		Port:                 8080,
		Environment:          "development",
		LogLevel:             "info",
		SessionExpiryMinutes: 10,
		NonceTTLMinutes:      10,
		Balance: BalanceConfig{
			APIURL:          balance.DefaultAPIURL,
			TimeoutSeconds:  10,
			SnapshotRetries: 2,
		},
		UPI: UPIConfig{PayeeName: "Payment Gateway"},
		Tables: TablesConfig{
			Nonces:   "nonces",
			Sessions: "payment_sessions",
			Orders:   "orders",
			Logs:     "logs",
		},
		NonceBackend: NonceBackendDynamo,
		LocalDBPath:  "upi-reconciler.db",
	}
}

// EnvMappings returns the environment variables understood by App.
func EnvMappings() map[string]EnvMapping[App] {
	str := func(f func(*App) *string) EnvMapping[App] {
		return EnvMapping[App]{Func: MapEnvString(f)}
	}
	num := func(f func(*App) *int) EnvMapping[App] {
		return EnvMapping[App]{Func: func(c *App, v string) error { return MapEnvInt(f(c), v) }}
	}
	return map[string]EnvMapping[App]{
		"PORT":                     num(func(c *App) *int { return &c.Port }),
		"APP_ENV":                  str(func(c *App) *string { return &c.Environment }),
		"RUN_LOCAL":                {Func: func(c *App, v string) error { return MapEnvBool(&c.RunLocal, v) }},
		"LOG_LEVEL":                str(func(c *App) *string { return &c.LogLevel }),
		"SESSION_EXPIRY_MINUTES":   num(func(c *App) *int { return &c.SessionExpiryMinutes }),
		"NONCE_TTL_MINUTES":        num(func(c *App) *int { return &c.NonceTTLMinutes }),
		"BALANCE_API_URL":          str(func(c *App) *string { return &c.Balance.APIURL }),
		"BALANCE_API_AUTH":         str(func(c *App) *string { return &c.Balance.Auth }),
		"BALANCE_TIMEOUT_SECONDS":  num(func(c *App) *int { return &c.Balance.TimeoutSeconds }),
		"BALANCE_SNAPSHOT_RETRIES": num(func(c *App) *int { return &c.Balance.SnapshotRetries }),
		"UPI_ID":                   str(func(c *App) *string { return &c.UPI.ID }),
		"UPI_PAYEE_NAME":           str(func(c *App) *string { return &c.UPI.PayeeName }),
		"NONCES_TABLE":             str(func(c *App) *string { return &c.Tables.Nonces }),
		"SESSIONS_TABLE":           str(func(c *App) *string { return &c.Tables.Sessions }),
		"ORDERS_TABLE":             str(func(c *App) *string { return &c.Tables.Orders }),
		"LOGS_TABLE":               str(func(c *App) *string { return &c.Tables.Logs }),
		"ORDERS_QUEUE_URL":         str(func(c *App) *string { return &c.OrdersQueueURL }),
		"METRICS_NAMESPACE":        str(func(c *App) *string { return &c.MetricsNamespace }),
		"NONCE_BACKEND":            str(func(c *App) *string { return &c.NonceBackend }),
		"REDIS_URL":                str(func(c *App) *string { return &c.RedisURL }),
		"LOCAL_DB_PATH":            str(func(c *App) *string { return &c.LocalDBPath }),
	}
}

// LoadApp loads App from the optional YAML file and the environment.
func LoadApp(yamlFilePath string) (*App, error) {
	cfg := Default()
	if err := Load(cfg, yamlFilePath, EnvMappings()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsValid implements Validator.
func (c *App) IsValid() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.SessionExpiryMinutes <= 0 {
		errs = append(errs, errors.New("session_expiry_minutes must be positive"))
	}
	if c.NonceTTLMinutes <= 0 {
		errs = append(errs, errors.New("nonce_ttl_minutes must be positive"))
	}
	if c.Balance.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("balance.timeout_seconds must be positive"))
	}
	if c.Balance.SnapshotRetries < 0 {
		errs = append(errs, errors.New("balance.snapshot_retries must not be negative"))
	}
	if u, err := url.Parse(c.Balance.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("balance.api_url %q is not an absolute URL", c.Balance.APIURL))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	switch c.NonceBackend {
	case NonceBackendDynamo:
	case NonceBackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis_url is required for the redis nonce backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown nonce_backend %q", c.NonceBackend))
	}

	if c.RunLocal {
		if c.LocalDBPath == "" {
			errs = append(errs, errors.New("local_db_path is required when run_local is set"))
		}
	} else {
		if c.Balance.Auth == "" {
			errs = append(errs, errors.New("balance.auth is required"))
		}
		for name, table := range map[string]string{
			"tables.nonces":   c.Tables.Nonces,
			"tables.sessions": c.Tables.Sessions,
			"tables.orders":   c.Tables.Orders,
			"tables.logs":     c.Tables.Logs,
		} {
			if table == "" {
				errs = append(errs, fmt.Errorf("%s is required", name))
			}
		}
	}
	return errors.Join(errs...)
}

// SessionExpiry is SessionExpiryMinutes as a duration.
func (c *App) SessionExpiry() time.Duration {
	return time.Duration(c.SessionExpiryMinutes) * time.Minute
}

// NonceTTL is NonceTTLMinutes as a duration.
func (c *App) NonceTTL() time.Duration {
	return time.Duration(c.NonceTTLMinutes) * time.Minute
}

// BalanceTimeout is Balance.TimeoutSeconds as a duration.
func (c *App) BalanceTimeout() time.Duration {
	return time.Duration(c.Balance.TimeoutSeconds) * time.Second
}
