package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("GINEE_ACCESS_KEY", "ak")
	t.Setenv("GINEE_SECRET_KEY", "sk")
	t.Setenv("ORDER_BACKFILL_START_DATE", "2024-01-01")
	t.Setenv("ORDER_SYNC_MAX_DAYS", "3")

	cfg, err := Load(writeConfig(t, "app:\n  namespace: shop-a\n"))
	require.NoError(t, err)

	assert.Equal(t, "shop-a", cfg.App.Namespace)
	assert.Equal(t, "Asia/Jakarta", cfg.App.Timezone)
	assert.Equal(t, "ak", cfg.Ginee.AccessKey)
	assert.Equal(t, "sk", cfg.Ginee.SecretKey)
	assert.Equal(t, "2024-01-01", cfg.Backfill.StartDate)
	assert.Equal(t, 3, cfg.Incremental.DefaultLookbackDays)
	assert.Equal(t, 2, cfg.Consensus.Threshold)
	assert.Equal(t, "affected", cfg.Merge.ConfirmRule)
	assert.Equal(t, 100, cfg.Detail.BatchSize)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	require.NoError(t, cfg.Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Setenv("GINEE_ACCESS_KEY", "")
	t.Setenv("GINEE_SECRET_KEY", "")
	t.Setenv("ORDER_BACKFILL_START_DATE", "")

	cfg, err := Load(writeConfig(t, `
app:
  timezone: Mars/Olympus
consensus:
  threshold: 0
merge:
  confirm_rule: strict
database:
  driver: mysql
archive:
  enabled: true
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{
		"app.timezone",
		"ginee.access_key",
		"ginee.secret_key",
		"backfill.start_date",
		"consensus.threshold",
		"merge.confirm_rule",
		"database.driver",
		"archive.endpoint",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBackfillStartIsLocalMidnight(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	start, err := BackfillConfig{StartDate: " 2024-01-02 "}.Start(jakarta)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC), start.UTC())

	_, err = BackfillConfig{StartDate: "02/01/2024"}.Start(jakarta)
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	pg := &DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "orders", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=orders sslmode=disable TimeZone=UTC", pg.DSN())

	pg.URL = "postgres://u:p@db/orders"
	assert.Equal(t, "postgres://u:p@db/orders", pg.DSN())

	lite := &DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	assert.Equal(t, "/tmp/x.db?_busy_timeout=5000&_txlock=immediate", lite.DSN())
}
