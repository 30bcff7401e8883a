package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"teamreport/common/config"
	"teamreport/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// SyncModeSnapshot 单一快照模式：整体覆盖写
	SyncModeSnapshot = "snapshot"
	// SyncModeLive 实时集合模式：逐条增删 + 订阅全量推送
	SyncModeLive = "live"

	// DefaultSoftLimitBytes 快照写入前的软阈值
	DefaultSoftLimitBytes = 900000
	// DefaultHardLimitBytes 文档存储的硬上限（1 MiB）
	DefaultHardLimitBytes = 1048576
)

// Config 日报服务配置
type Config struct {
	HTTP struct {
		Addr            string        `validate:"required"`
		ShutdownTimeout time.Duration `validate:"gt=0"`
	}

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Sync      SyncConfig
	Catalog   CatalogConfig
	Operator  OperatorConfig
	Extractor ExtractorConfig
	Ingest    IngestConfig

	Log struct {
		Level  string `validate:"oneof=debug info warn error"`
		Format string `validate:"oneof=json console"`
	}
}

// SyncConfig 持久化后端配置
type SyncConfig struct {
	// snapshot 或 live
	Mode string `validate:"oneof=snapshot live"`
	// 快照后端：file / redis / jsonbin / gcs
	SnapshotBackend string `validate:"oneof=file redis jsonbin gcs"`
	// 实时集合后端：postgres / memory
	LiveBackend string `validate:"oneof=postgres memory"`

	SoftLimitBytes int `validate:"gt=0,ltfield=HardLimitBytes"`
	HardLimitBytes int `validate:"gt=0"`

	// 远端快照前置本地文件缓存（先读本地，远端非空时覆盖）
	LocalCache bool
	FilePath   string `validate:"required"`
	RedisKey   string `validate:"required"`

	// 实时推送通道（Postgres 模式下通过 Redis Pub/Sub 广播变更）
	NotifyChannel string
	PollInterval  time.Duration `validate:"gt=0"`

	JSONBin JSONBinConfig
	GCS     GCSConfig

	RequestTimeout time.Duration `validate:"gt=0"`
}

// JSONBinConfig JSONBin REST 存储
type JSONBinConfig struct {
	BaseURL string `validate:"required,url"`
	BinID   string
	APIKey  string
}

// GCSConfig GCS 对象存储
type GCSConfig struct {
	Bucket string
	Object string `validate:"required"`
	// 为空时使用 ADC
	CredentialsJSON string
}

// CatalogConfig 部门枚举与关键词
type CatalogConfig struct {
	Departments []string          `yaml:"departments" validate:"required,min=1,dive,required"`
	Default     string            `yaml:"default" validate:"required"`
	Aliases     map[string]string `yaml:"aliases"`
	Keywords    []string          `yaml:"keywords"`
}

// OperatorConfig 破坏性操作的操作员口令
// 口令为空时删除/清空一律拒绝
type OperatorConfig struct {
	Passphrase string
}

// ExtractorConfig 抽取服务（Gemini）
type ExtractorConfig struct {
	APIKey  string
	Model   string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
}

// IngestConfig 异步接入
type IngestConfig struct {
	StreamEnabled bool
	Stream        string `validate:"required"`
	ConsumerGroup string `validate:"required"`
	ConsumerName  string `validate:"required"`
	BatchSize     int    `validate:"gt=0"`

	MQTTEnabled bool
}

// Load 加载配置
func Load() (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "teamreport")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "teamreport")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "teamreport/ingest")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Sync.Mode = getEnv("SYNC_MODE", SyncModeSnapshot)
	cfg.Sync.SnapshotBackend = getEnv("SNAPSHOT_BACKEND", "file")
	cfg.Sync.LiveBackend = getEnv("LIVE_BACKEND", "memory")
	cfg.Sync.SoftLimitBytes = getEnvInt("SNAPSHOT_SOFT_LIMIT_BYTES", DefaultSoftLimitBytes)
	cfg.Sync.HardLimitBytes = getEnvInt("SNAPSHOT_HARD_LIMIT_BYTES", DefaultHardLimitBytes)
	cfg.Sync.LocalCache = getEnv("SNAPSHOT_LOCAL_CACHE", "true") == "true"
	cfg.Sync.FilePath = getEnv("SNAPSHOT_FILE", "data/dingtalk_reports_v2.json")
	cfg.Sync.RedisKey = getEnv("SNAPSHOT_REDIS_KEY", "dingtalk:reports:v2")
	cfg.Sync.NotifyChannel = getEnv("LIVE_NOTIFY_CHANNEL", "teamreport:reports:changed")
	cfg.Sync.PollInterval = getEnvDuration("LIVE_POLL_INTERVAL", 30*time.Second)
	cfg.Sync.RequestTimeout = getEnvDuration("SYNC_REQUEST_TIMEOUT", 15*time.Second)

	cfg.Sync.JSONBin.BaseURL = getEnv("JSONBIN_BASE_URL", "https://api.jsonbin.io/v3")
	cfg.Sync.JSONBin.BinID = getEnv("JSONBIN_BIN_ID", "")
	cfg.Sync.JSONBin.APIKey = getEnv("JSONBIN_API_KEY", "")

	cfg.Sync.GCS.Bucket = getEnv("GCS_BUCKET", "")
	cfg.Sync.GCS.Object = getEnv("GCS_OBJECT", "teamreport/dingtalk_reports_v2.json")
	cfg.Sync.GCS.CredentialsJSON = getEnv("GCS_CREDENTIALS_JSON", "")

	cfg.Catalog = CatalogConfig{
		Departments: append([]string(nil), domain.DefaultDepartments...),
		Default:     domain.DefaultDepartment,
		Aliases:     copyAliases(domain.DefaultAliases),
		Keywords:    splitList(getEnv("REPORT_KEYWORDS", "")),
	}
	if path := getEnv("REPORT_CATALOG_FILE", ""); path != "" {
		if err := LoadCatalogFile(path, &cfg.Catalog); err != nil {
			return nil, err
		}
	}

	cfg.Operator.Passphrase = getEnv("OPERATOR_PASSPHRASE", "")

	cfg.Extractor.APIKey = getEnv("GEMINI_API_KEY", "")
	cfg.Extractor.Model = getEnv("GEMINI_MODEL", "gemini-2.5-flash")
	cfg.Extractor.Timeout = getEnvDuration("GEMINI_TIMEOUT", 60*time.Second)

	cfg.Ingest.StreamEnabled = getEnv("REPORT_INGEST_ENABLED", "false") == "true"
	cfg.Ingest.Stream = getEnv("REPORT_INGEST_STREAM", "teamreport:ingest")
	cfg.Ingest.ConsumerGroup = getEnv("REPORT_INGEST_GROUP", "teamreport-group")
	cfg.Ingest.ConsumerName = getEnv("REPORT_INGEST_CONSUMER", "teamreport-1")
	cfg.Ingest.BatchSize = getEnvInt("REPORT_INGEST_BATCH_SIZE", 10)
	cfg.Ingest.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sync.Mode == SyncModeSnapshot {
		switch c.Sync.SnapshotBackend {
		case "jsonbin":
			if c.Sync.JSONBin.BinID == "" || c.Sync.JSONBin.APIKey == "" {
				return fmt.Errorf("invalid config: JSONBIN_BIN_ID and JSONBIN_API_KEY are required for jsonbin snapshot backend")
			}
		case "gcs":
			if c.Sync.GCS.Bucket == "" {
				return fmt.Errorf("invalid config: GCS_BUCKET is required for gcs snapshot backend")
			}
		}
	}
	return nil
}

// DomainCatalog 转换为领域层的部门目录
func (c CatalogConfig) DomainCatalog() domain.Catalog {
	return domain.NewCatalog(c.Departments, c.Default, c.Aliases)
}

// LoadCatalogFile 从 YAML 文件覆盖部门目录；文件中缺省的字段保留原值
func LoadCatalogFile(path string, catalog *CatalogConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var fileCfg CatalogConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	if len(fileCfg.Departments) > 0 {
		catalog.Departments = fileCfg.Departments
	}
	if fileCfg.Default != "" {
		catalog.Default = fileCfg.Default
	}
	if fileCfg.Aliases != nil {
		catalog.Aliases = fileCfg.Aliases
	}
	if fileCfg.Keywords != nil {
		catalog.Keywords = fileCfg.Keywords
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

// splitList 逗号分隔，去空白去重
func splitList(s string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func copyAliases(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
