package config

import (
	"fmt"
	"strings"
	"time"
)

// DatabaseConfig selects the GORM driver and its connection settings.
// Driver is "postgres" for deployments and "sqlite" for local runs and tests.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`

	// URL, when set, is used verbatim as the PostgreSQL DSN (DATABASE_URL).
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		if strings.TrimSpace(c.URL) != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	default:
		// busy_timeout keeps concurrent stage writers from failing fast with SQLITE_BUSY
		return c.Path + "?_busy_timeout=5000&_txlock=immediate"
	}
}
