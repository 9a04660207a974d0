package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)

	r, err := cfg.NearRatio()
	require.NoError(t, err)
	assert.Equal(t, "0.8", r.String())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// GIVEN: A YAML file and an environment override
	// WHEN: Loading
	// THEN: The environment wins over the file, the file over defaults
	path := writeFile(t, `
port: 9000
log_level: DEBUG
database:
  driver: memory
capacity:
  near_ratio: "0.75"
  weekly_defaults: [0, 60, 60, 60, 60, 60, 30]
sweep:
  cron: "*/30 * * * *"
cache_ttl: 90s
`)
	t.Setenv("APP_PORT", "9100")
	t.Setenv("SWEEP_HORIZON_DAYS", "3")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
	assert.Equal(t, []int{0, 60, 60, 60, 60, 60, 30}, cfg.Capacity.WeeklyDefaults)
	assert.Equal(t, "*/30 * * * *", cfg.Sweep.Cron)
	assert.Equal(t, 3, cfg.Sweep.HorizonDays)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "database:\n  driver: postgres\n",
		"ratio":    "capacity:\n  near_ratio: \"1.5\"\n",
		"weekly":   "capacity:\n  weekly_defaults: [1, 2, 3]\n",
		"negative": "capacity:\n  weekly_defaults: [0, 1, 1, 1, 1, -1, 1]\n",
		"cron":     "sweep:\n  cron: \"every day\"\n",
		"yaml":     "port: [",
	}
	for name, body := range cases {
		_, err := config.Load(writeFile(t, body))
		if err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("APP_PORT", "eighty")
	_, err := config.Load("")
	assert.Error(t, err)

	t.Setenv("APP_PORT", "")
	t.Setenv("CACHE_TTL", "soon")
	_, err = config.Load("")
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())

	assert.False(t, config.Default().IsProduction())
}
