package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_MAX_CONNS", "DB_MAX_IDLE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_QOS",
	"HTTP_ADDR", "RISK_API_URL", "HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_CORS_ORIGINS",
	"DATASET_SIZE", "DATASET_SEED", "DATASET_CSV_PATH", "DATASET_XLSX_PATH", "DATASET_SOURCE_CSV",
	"TRAIN_N_ESTIMATORS", "TRAIN_MAX_DEPTH", "TRAIN_MIN_SAMPLES_LEAF", "TRAIN_MAX_FEATURES",
	"TRAIN_RANDOM_STATE", "TRAIN_TEST_FRACTION", "TRAIN_CV_FOLDS", "TRAIN_MIN_SAMPLES", "TRAIN_N_JOBS",
	"MODEL_PATH", "MODEL_USE_REGISTRY", "MODEL_ID",
	"MONITOR_BEDS", "MONITOR_INTERVAL", "MONITOR_STREAM", "MONITOR_STREAM_MAX_LEN", "MONITOR_CONSUMER_GROUP",
	"MONITOR_CONSUMER_NAME", "MONITOR_BATCH_SIZE", "MONITOR_BLOCK", "MONITOR_KEY_PREFIX", "MONITOR_LATEST_TTL",
	"MONITOR_HISTORY_SIZE", "MONITOR_ALERT_TOPIC_PREFIX",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv 空值等同于未设置
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, ":8090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)

	assert.Equal(t, 1000, cfg.Dataset.Size)
	assert.Equal(t, int64(42), cfg.Dataset.Seed)
	assert.Empty(t, cfg.Dataset.XLSXPath)

	assert.Equal(t, 200, cfg.Training.NEstimators)
	assert.Equal(t, 8, cfg.Training.MaxDepth)
	assert.Equal(t, int64(42), cfg.Training.RandomState)
	assert.Equal(t, 0.2, cfg.Training.TestFraction)
	assert.Equal(t, 5, cfg.Training.CVFolds)
	assert.Equal(t, 10, cfg.Training.MinSamples)

	assert.Equal(t, "models/risk_model.json", cfg.Model.Path)
	assert.False(t, cfg.Model.UseRegistry)

	assert.Equal(t, []BedConfig{
		{ID: "bed-01", Profile: "normal"},
		{ID: "bed-02", Profile: "warning"},
		{ID: "bed-03", Profile: "critical"},
		{ID: "bed-04", Profile: "mixed"},
	}, cfg.Monitor.Beds)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "icu:vitals:samples", cfg.Monitor.Stream)
	assert.Equal(t, "icu:monitor:", cfg.Monitor.KeyPrefix)
	assert.Equal(t, int64(60), cfg.Monitor.HistorySize)
	assert.Equal(t, "icu/alerts/", cfg.Monitor.AlertTopicPrefix)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("HTTP_CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("DATASET_SIZE", "500")
	t.Setenv("TRAIN_N_ESTIMATORS", "100")
	t.Setenv("TRAIN_TEST_FRACTION", "0.25")
	t.Setenv("MODEL_USE_REGISTRY", "true")
	t.Setenv("MODEL_ID", "rf-pinned")
	t.Setenv("MONITOR_BEDS", "icu-1:critical, icu-2")
	t.Setenv("MONITOR_INTERVAL", "500ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 500, cfg.Dataset.Size)
	assert.Equal(t, 100, cfg.Training.NEstimators)
	assert.Equal(t, 0.25, cfg.Training.TestFraction)
	assert.True(t, cfg.Model.UseRegistry)
	assert.Equal(t, "rf-pinned", cfg.Model.ID)
	assert.Equal(t, []BedConfig{{ID: "icu-1", Profile: "critical"}, {ID: "icu-2", Profile: "mixed"}}, cfg.Monitor.Beds)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PORT", "abc")
	t.Setenv("MQTT_QOS", "5")
	t.Setenv("MONITOR_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 2*time.Second, cfg.Monitor.Interval)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"zero trees", map[string]string{"TRAIN_N_ESTIMATORS": "0"}, "n_estimators"},
		{"bad test fraction", map[string]string{"TRAIN_TEST_FRACTION": "1"}, "test_fraction"},
		{"negative interval", map[string]string{"MONITOR_INTERVAL": "-1s"}, "monitor interval"},
		{"duplicate beds", map[string]string{"MONITOR_BEDS": "a,a"}, "duplicate"},
		{"empty bed id", map[string]string{"MONITOR_BEDS": ":normal"}, "MONITOR_BEDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_ConfigFileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_DB_PASSWORD", "from-env")

	path := filepath.Join(t.TempDir(), "risk.yaml")
	content := `
database:
  host: pg.internal
  password: ${RISK_DB_PASSWORD}
dataset:
  size: 300
  xlsx_path: out/vitals.xlsx
training:
  n_estimators: 50
  max_depth: 6
monitor:
  interval: 5s
  beds:
    - id: ward-a
      profile: critical
log:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "from-env", cfg.Database.Password)
	// 未出现在文件中的字段保持环境变量/默认值
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 300, cfg.Dataset.Size)
	assert.Equal(t, "out/vitals.xlsx", cfg.Dataset.XLSXPath)
	assert.Equal(t, 50, cfg.Training.NEstimators)
	assert.Equal(t, 6, cfg.Training.MaxDepth)
	assert.Equal(t, 0.2, cfg.Training.TestFraction)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, []BedConfig{{ID: "ward-a", Profile: "critical"}}, cfg.Monitor.Beds)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFileErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training: [1, 2"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	assert.True(t, getEnvBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvBool("TEST_BOOL", true))

	t.Setenv("TEST_FLOAT", "0.5")
	assert.Equal(t, 0.5, getEnvFloat("TEST_FLOAT", 1))

	t.Setenv("TEST_LIST", " , ")
	assert.Empty(t, getEnvList("TEST_LIST", []string{"x"}))

	assert.Equal(t, "default-value", getEnv("TEST_UNSET_KEY_FOR_RISK", "default-value"))
}

func TestLoad_ConfigFileInvalidQoS(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  qos: 5\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qos")
}
