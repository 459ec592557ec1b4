package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure so callers can
// distinguish startup configuration problems from runtime errors.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ginee       GineeConfig       `mapstructure:"ginee"`
	Backfill    BackfillConfig    `mapstructure:"backfill"`
	Incremental IncrementalConfig `mapstructure:"incremental"`
	Consensus   ConsensusConfig   `mapstructure:"consensus"`
	Merge       MergeConfig       `mapstructure:"merge"`
	Sampler     SamplerConfig     `mapstructure:"sampler"`
	Detail      DetailConfig      `mapstructure:"detail"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Log         LogConfig         `mapstructure:"log"`
}

type AppConfig struct {
	Namespace string `mapstructure:"namespace"`
	Timezone  string `mapstructure:"timezone"`
}

// Location resolves the configured calendar timezone.
func (c AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GineeConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Country   string        `mapstructure:"country"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BackfillConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	StartDate      string `mapstructure:"start_date"`
	MaxUnitsPerRun int    `mapstructure:"max_units_per_run"`
}

// Start parses StartDate as a calendar day in loc.
func (c BackfillConfig) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(c.StartDate), loc)
}

type IncrementalConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	DefaultLookbackDays int  `mapstructure:"default_lookback_days"`
}

type ConsensusConfig struct {
	Threshold int `mapstructure:"threshold"`
}

type MergeConfig struct {
	ConfirmRule string `mapstructure:"confirm_rule"`
}

type SamplerConfig struct {
	UnitDelay time.Duration `mapstructure:"unit_delay"`
}

type DetailConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	UnitDelay  time.Duration `mapstructure:"unit_delay"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Names shared with the deployment environment of the previous service.
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("ginee.access_key", "GINEE_ACCESS_KEY")
	v.BindEnv("ginee.secret_key", "GINEE_SECRET_KEY")
	v.BindEnv("ginee.base_url", "GINEE_BASE_URL")
	v.BindEnv("backfill.start_date", "ORDER_BACKFILL_START_DATE")
	v.BindEnv("incremental.default_lookback_days", "ORDER_SYNC_MAX_DAYS")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
	v.BindEnv("log.environment", "APP_ENV")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.namespace", "default")
	v.SetDefault("app.timezone", "Asia/Jakarta")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/ginee-sync.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "ginee_sync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("ginee.base_url", "https://api.ginee.com")
	v.SetDefault("ginee.country", "ID")
	v.SetDefault("ginee.page_size", 100)
	v.SetDefault("ginee.timeout", 60*time.Second)

	v.SetDefault("backfill.enabled", true)
	v.SetDefault("backfill.max_units_per_run", 90)

	v.SetDefault("incremental.enabled", false)
	v.SetDefault("incremental.default_lookback_days", 1)

	v.SetDefault("consensus.threshold", 2)
	v.SetDefault("merge.confirm_rule", "affected")

	v.SetDefault("sampler.unit_delay", 5*time.Second)

	v.SetDefault("detail.batch_size", 100)
	v.SetDefault("detail.batch_delay", 5*time.Second)
	v.SetDefault("detail.unit_delay", 5*time.Second)

	v.SetDefault("scheduler.interval", time.Minute)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "ginee-sync")
	v.SetDefault("archive.prefix", "attempts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.file", "/var/log/ginee-sync/app.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

// Validate reports settings the scheduler cannot start without.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.App.Namespace) == "" {
		problems = append(problems, "app.namespace is empty")
	}
	loc, err := c.App.Location()
	if err != nil {
		problems = append(problems, fmt.Sprintf("app.timezone %q: %v", c.App.Timezone, err))
	}
	if strings.TrimSpace(c.Ginee.AccessKey) == "" {
		problems = append(problems, "ginee.access_key (GINEE_ACCESS_KEY) is not set")
	}
	if strings.TrimSpace(c.Ginee.SecretKey) == "" {
		problems = append(problems, "ginee.secret_key (GINEE_SECRET_KEY) is not set")
	}
	if c.Backfill.Enabled {
		if strings.TrimSpace(c.Backfill.StartDate) == "" {
			problems = append(problems, "backfill.start_date (ORDER_BACKFILL_START_DATE) is not set")
		} else if loc != nil {
			if _, err := c.Backfill.Start(loc); err != nil {
				problems = append(problems, fmt.Sprintf("backfill.start_date %q is invalid", c.Backfill.StartDate))
			}
		}
		if c.Backfill.MaxUnitsPerRun < 1 {
			problems = append(problems, "backfill.max_units_per_run must be >= 1")
		}
	}
	if c.Incremental.Enabled && c.Incremental.DefaultLookbackDays < 1 {
		problems = append(problems, "incremental.default_lookback_days must be >= 1")
	}
	if c.Consensus.Threshold < 1 {
		problems = append(problems, "consensus.threshold must be >= 1")
	}
	switch c.Merge.ConfirmRule {
	case "affected", "settled":
	default:
		problems = append(problems, fmt.Sprintf("merge.confirm_rule %q must be affected or settled", c.Merge.ConfirmRule))
	}
	if c.Detail.BatchSize < 1 {
		problems = append(problems, "detail.batch_size must be >= 1")
	}
	if c.Scheduler.Interval <= 0 {
		problems = append(problems, "scheduler.interval must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Archive.Enabled && c.Archive.Type != "memory" && strings.TrimSpace(c.Archive.Endpoint) == "" {
		problems = append(problems, "archive.endpoint is required when archive is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
