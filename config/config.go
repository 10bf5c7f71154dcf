/*
Package config loads service settings.

SOURCES (later wins):
  1. built-in defaults
  2. config/.env.<env> next to the working directory, if present
     (<env> is $ENV lowercased, "dev" when unset)
  3. LEDGER_* environment variables, e.g. LEDGER_DB_DSN, LEDGER_WEBHOOK_SECRET
  4. command-line flags applied by cmd/server
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LEDGER"

type Config struct {
	Env  string
	Port int

	DB struct {
		Driver string
		DSN    string
	}

	// Currency applied to pledges and payments that omit one.
	Currency string

	Webhook struct {
		Secret    string
		Tolerance time.Duration
	}

	Log struct {
		Level  string
		Pretty bool
	}

	// AuditInterval is how often the counter audit runs; 0 disables it.
	AuditInterval time.Duration

	CORSOrigins []string

	// FiscalYearStart is the first month (1-12) of the reporting fiscal year.
	FiscalYearStart time.Month
}

func defaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", 8080)
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "ledger.db")
	v.SetDefault("currency", "USD")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.tolerance", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("audit.interval", time.Hour)
	v.SetDefault("cors.origins", []string{"*"})
	v.SetDefault("report.fiscal_start_month", 7)
}

// Load reads configuration rooted at dir (usually the working directory).
func Load(dir string) (Config, error) {
	env := strings.ToLower(os.Getenv("ENV"))
	if env == "" {
		env = "dev"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(dir, "config", ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return Config{}, fmt.Errorf("config.godotenv(%s): %w", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config.os.Stat(%s): %w", dotEnvPath, err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	c.Env = env
	c.Port = v.GetInt("port")
	c.DB.Driver = v.GetString("db.driver")
	c.DB.DSN = v.GetString("db.dsn")
	c.Currency = strings.ToUpper(v.GetString("currency"))
	c.Webhook.Secret = v.GetString("webhook.secret")
	c.Webhook.Tolerance = v.GetDuration("webhook.tolerance")
	c.Log.Level = v.GetString("log.level")
	c.Log.Pretty = v.GetBool("log.pretty")
	c.AuditInterval = v.GetDuration("audit.interval")
	c.CORSOrigins = v.GetStringSlice("cors.origins")
	c.FiscalYearStart = time.Month(v.GetInt("report.fiscal_start_month"))

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("config: unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("config: currency must be a 3-letter code, got %q", c.Currency)
	}
	if c.FiscalYearStart < time.January || c.FiscalYearStart > time.December {
		return fmt.Errorf("config: report.fiscal_start_month must be 1-12, got %d", c.FiscalYearStart)
	}
	if c.Webhook.Tolerance < 0 || c.AuditInterval < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	return nil
}
