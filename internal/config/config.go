package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-risk/internal/scorer"
	"wisefido-risk/owl-common/config"

	"gopkg.in/yaml.v3"
)

// Config 风险评分服务配置
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	HTTP     HTTPConfig         `yaml:"http"`
	Dataset  DatasetConfig      `yaml:"dataset"`
	Training scorer.TrainConfig `yaml:"training"`
	Model    ModelConfig        `yaml:"model"`
	Monitor  MonitorConfig      `yaml:"monitor"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// HTTPConfig HTTP API 配置
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`          // 监听地址，默认 ":8090"
	BaseURL      string        `yaml:"base_url"`      // 命令行客户端访问的 API 地址
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 默认 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // 默认 30s
	CORSOrigins  []string      `yaml:"cors_origins"`  // 默认 ["*"]
}

// DatasetConfig 训练数据集配置
type DatasetConfig struct {
	Size      int    `yaml:"size"`       // 样本数，默认 1000
	Seed      int64  `yaml:"seed"`       // 生成种子，默认 42
	CSVPath   string `yaml:"csv_path"`   // 数据集 CSV 路径
	XLSXPath  string `yaml:"xlsx_path"`  // 为空时不导出 Excel
	SourceCSV string `yaml:"source_csv"` // 非空时从该文件读取数据集而不是生成
}

// ModelConfig 模型文件与注册表配置
type ModelConfig struct {
	Path        string `yaml:"path"`         // 模型文件路径
	UseRegistry bool   `yaml:"use_registry"` // 训练后登记到 PostgreSQL，服务启动时优先从注册表加载
	ID          string `yaml:"id"`           // 固定加载的 model_id，为空时加载最新模型
}

// BedConfig 模拟床位
type BedConfig struct {
	ID      string `yaml:"id"`
	Profile string `yaml:"profile"` // normal / warning / critical / mixed
}

// MonitorConfig 实时监护配置
type MonitorConfig struct {
	Beds             []BedConfig   `yaml:"beds"`
	Interval         time.Duration `yaml:"interval"`           // 采样间隔，默认 2s
	Stream           string        `yaml:"stream"`             // 默认 "icu:vitals:samples"
	StreamMaxLen     int64         `yaml:"stream_max_len"`     // 默认 10000
	ConsumerGroup    string        `yaml:"consumer_group"`     // 默认 "risk-scorer-group"
	ConsumerName     string        `yaml:"consumer_name"`      // 默认 "risk-scorer-1"
	BatchSize        int64         `yaml:"batch_size"`         // 默认 10
	Block            time.Duration `yaml:"block"`              // 读取阻塞时长，默认 1s
	KeyPrefix        string        `yaml:"key_prefix"`         // 默认 "icu:monitor:"
	LatestTTL        time.Duration `yaml:"latest_ttl"`         // 默认 60s
	HistorySize      int64         `yaml:"history_size"`       // 默认 60
	AlertTopicPrefix string        `yaml:"alert_topic_prefix"` // 默认 "icu/alerts/"
}

// Load 加载配置：先读环境变量（含默认值），设置了 CONFIG_FILE 时再用 YAML 覆盖
func Load() (*Config, error) {
	cfg := &Config{}

	// 共享连接配置：先给默认值，再由 owl-common 按前缀读取环境变量
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owlrd",
		SSLMode:  "disable",
		MaxConns: 5,
		MaxIdle:  2,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "wisefido-risk-monitor",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")
	cfg.HTTP.BaseURL = getEnv("RISK_API_URL", "http://localhost:8090")
	cfg.HTTP.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTP.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	cfg.HTTP.CORSOrigins = getEnvList("HTTP_CORS_ORIGINS", []string{"*"})

	cfg.Dataset.Size = getEnvInt("DATASET_SIZE", 1000)
	cfg.Dataset.Seed = int64(getEnvInt("DATASET_SEED", 42))
	cfg.Dataset.CSVPath = getEnv("DATASET_CSV_PATH", "data/icu_vitals.csv")
	cfg.Dataset.XLSXPath = getEnv("DATASET_XLSX_PATH", "")
	cfg.Dataset.SourceCSV = getEnv("DATASET_SOURCE_CSV", "")

	cfg.Training = scorer.DefaultTrainConfig()
	cfg.Training.NEstimators = getEnvInt("TRAIN_N_ESTIMATORS", cfg.Training.NEstimators)
	cfg.Training.MaxDepth = getEnvInt("TRAIN_MAX_DEPTH", cfg.Training.MaxDepth)
	cfg.Training.MinSamplesLeaf = getEnvInt("TRAIN_MIN_SAMPLES_LEAF", cfg.Training.MinSamplesLeaf)
	cfg.Training.MaxFeatures = getEnvInt("TRAIN_MAX_FEATURES", cfg.Training.MaxFeatures)
	cfg.Training.RandomState = int64(getEnvInt("TRAIN_RANDOM_STATE", int(cfg.Training.RandomState)))
	cfg.Training.TestFraction = getEnvFloat("TRAIN_TEST_FRACTION", cfg.Training.TestFraction)
	cfg.Training.CVFolds = getEnvInt("TRAIN_CV_FOLDS", cfg.Training.CVFolds)
	cfg.Training.MinSamples = getEnvInt("TRAIN_MIN_SAMPLES", cfg.Training.MinSamples)
	cfg.Training.NJobs = getEnvInt("TRAIN_N_JOBS", cfg.Training.NJobs)

	cfg.Model.Path = getEnv("MODEL_PATH", "models/risk_model.json")
	cfg.Model.UseRegistry = getEnvBool("MODEL_USE_REGISTRY", false)
	cfg.Model.ID = getEnv("MODEL_ID", "")

	beds, err := parseBeds(getEnv("MONITOR_BEDS", "bed-01:normal,bed-02:warning,bed-03:critical,bed-04:mixed"))
	if err != nil {
		return nil, err
	}
	cfg.Monitor.Beds = beds
	cfg.Monitor.Interval = getEnvDuration("MONITOR_INTERVAL", 2*time.Second)
	cfg.Monitor.Stream = getEnv("MONITOR_STREAM", "icu:vitals:samples")
	cfg.Monitor.StreamMaxLen = int64(getEnvInt("MONITOR_STREAM_MAX_LEN", 10000))
	cfg.Monitor.ConsumerGroup = getEnv("MONITOR_CONSUMER_GROUP", "risk-scorer-group")
	cfg.Monitor.ConsumerName = getEnv("MONITOR_CONSUMER_NAME", "risk-scorer-1")
	cfg.Monitor.BatchSize = int64(getEnvInt("MONITOR_BATCH_SIZE", 10))
	cfg.Monitor.Block = getEnvDuration("MONITOR_BLOCK", time.Second)
	cfg.Monitor.KeyPrefix = getEnv("MONITOR_KEY_PREFIX", "icu:monitor:")
	cfg.Monitor.LatestTTL = getEnvDuration("MONITOR_LATEST_TTL", 60*time.Second)
	cfg.Monitor.HistorySize = int64(getEnvInt("MONITOR_HISTORY_SIZE", 60))
	cfg.Monitor.AlertTopicPrefix = getEnv("MONITOR_ALERT_TOPIC_PREFIX", "icu/alerts/")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 用 YAML 文件覆盖已有配置（支持 ${VAR} 环境变量展开）
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if c.Dataset.Size <= 0 && c.Dataset.SourceCSV == "" {
		return fmt.Errorf("dataset size must be positive, got %d", c.Dataset.Size)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.Block <= 0 {
		return fmt.Errorf("monitor block must be positive, got %s", c.Monitor.Block)
	}
	if c.Monitor.HistorySize <= 0 {
		return fmt.Errorf("monitor history size must be positive, got %d", c.Monitor.HistorySize)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	seen := make(map[string]bool, len(c.Monitor.Beds))
	for _, b := range c.Monitor.Beds {
		if b.ID == "" {
			return fmt.Errorf("monitor bed id is required")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate monitor bed id %q", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

// parseBeds 解析 "bed-01:normal,bed-02" 格式，省略 profile 时为 mixed
func parseBeds(s string) ([]BedConfig, error) {
	var beds []BedConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, profile, _ := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid MONITOR_BEDS entry %q", item)
		}
		profile = strings.TrimSpace(profile)
		if profile == "" {
			profile = "mixed"
		}
		beds = append(beds, BedConfig{ID: id, Profile: profile})
	}
	return beds, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
