package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"judgebroker/internal/common/cache"
	"judgebroker/internal/common/db"
	"judgebroker/internal/common/mq"
	"judgebroker/internal/common/storage"
	"judgebroker/internal/judge/execution"
	"judgebroker/internal/judge/language"
	problemservice "judgebroker/internal/problem/service"
	"judgebroker/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr          = "0.0.0.0:8080"
	defaultReadTimeout       = 5 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
	defaultStatusTTL         = 30 * time.Minute
	defaultSubmissionTimeout = 60 * time.Second
	defaultMaxStdoutBytes    = 64 << 10
	defaultMaxCodeBytes      = 64 << 10
	defaultTimeLimitMs       = 2000
	defaultMemoryLimitKB     = 256 << 10

	dispatchLocal = "local"
	dispatchKafka = "kafka"

	executionGRPC  = "grpc"
	executionLocal = "local"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	TrustUserIDHeader bool          `yaml:"trustUserIdHeader"`
}

// DatabaseConfig selects the SQL driver.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // mysql, postgres
	DSN           string `yaml:"dsn"`
	db.PoolConfig `yaml:",inline"`
}

// KafkaConfig holds Kafka settings. Leaving brokers empty disables kafka dispatch,
// final status events and the stats consumer.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	JudgeTopic    string        `yaml:"judgeTopic"`
	StatusTopic   string        `yaml:"statusTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	RetryTopic    string        `yaml:"retryTopic"`
	CleanupTopic  string        `yaml:"cleanupTopic"`
	PoolRetryMax  int           `yaml:"poolRetryMax"`
	PoolRetryBase time.Duration `yaml:"poolRetryBaseDelay"`
	PoolRetryMaxD time.Duration `yaml:"poolRetryMaxDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
	MessageTTL    time.Duration `yaml:"messageTTL"`
}

func (k KafkaConfig) enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		RequiredAcks: k.RequiredAcks,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		Compression:  k.Compression,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		DialTimeout:  k.DialTimeout,
	}
}

func (k KafkaConfig) subscribeOptions(group string) *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   group,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
		MessageTTL:      k.MessageTTL,
	}
}

// NATSConfig enables progress events. An empty URL disables them.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subjectPrefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ExecutionConfig selects the execution backend.
type ExecutionConfig struct {
	Mode                 string `yaml:"mode"` // grpc, local
	execution.GRPCConfig `yaml:",inline"`
}

// JudgeConfig holds worker pool and limit settings.
type JudgeConfig struct {
	Dispatch          string           `yaml:"dispatch"` // local, kafka
	WorkerPoolSize    int              `yaml:"workerPoolSize"`
	QueueWait         time.Duration    `yaml:"queueWait"`
	SubmissionTimeout time.Duration    `yaml:"submissionTimeout"`
	StatusTimeout     time.Duration    `yaml:"statusTimeout"`
	StatusTTL         time.Duration    `yaml:"statusTTL"`
	MetaTTL           time.Duration    `yaml:"metaTTL"`
	MaxStdoutBytes    int              `yaml:"maxStdoutBytes"`
	MaxCodeBytes      int              `yaml:"maxCodeBytes"`
	DefaultLimits     execution.Limits `yaml:"defaultLimits"`
	LiveInterval      time.Duration    `yaml:"liveInterval"`
	IdempotencyTTL    time.Duration    `yaml:"idempotencyTTL"`
}

// TestCaseConfig holds test case cache and archive settings.
type TestCaseConfig struct {
	CacheTTL      time.Duration                `yaml:"cacheTTL"`
	EmptyCacheTTL time.Duration                `yaml:"emptyCacheTTL"`
	KeyPrefix     string                       `yaml:"keyPrefix"`
	UploadTTL     time.Duration                `yaml:"uploadTTL"`
	Archive       problemservice.ArchiveLimits `yaml:"archive"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// AppConfig holds broker config.
type AppConfig struct {
	Server    ServerConfig                `yaml:"server"`
	Logger    logger.Config               `yaml:"logger"`
	Database  DatabaseConfig              `yaml:"database"`
	Redis     cache.RedisConfig           `yaml:"redis"`
	MinIO     storage.MinIOConfig         `yaml:"minio"`
	Kafka     KafkaConfig                 `yaml:"kafka"`
	NATS      NATSConfig                  `yaml:"nats"`
	Execution ExecutionConfig             `yaml:"execution"`
	Judge     JudgeConfig                 `yaml:"judge"`
	TestCases TestCaseConfig              `yaml:"testCases"`
	Stats     problemservice.StatsOptions `yaml:"stats"`
	Auth      AuthConfig                  `yaml:"auth"`
	Languages []language.Config           `yaml:"languages"`
}

// loadEnv reads an optional dotenv file. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file failed: %w", err)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(expandEnv(data), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// envPattern matches ${NAME} only. Bare $NAME is left alone since language
// commands use it for placeholders.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(m[2 : len(m)-1])))
	})
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = db.DriverMySQL
	case db.DriverMySQL, db.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	cfg.Redis.ApplyDefaults()
	if len(cfg.Languages) == 0 {
		return fmt.Errorf("at least one language is required")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Execution.Mode == "" {
		cfg.Execution.Mode = executionGRPC
	}
	switch cfg.Execution.Mode {
	case executionGRPC:
		if cfg.Execution.Endpoint == "" {
			return fmt.Errorf("execution endpoint is required")
		}
	case executionLocal:
	default:
		return fmt.Errorf("unsupported execution mode %q", cfg.Execution.Mode)
	}

	if cfg.Judge.Dispatch == "" {
		cfg.Judge.Dispatch = dispatchLocal
	}
	switch cfg.Judge.Dispatch {
	case dispatchLocal:
	case dispatchKafka:
		if !cfg.Kafka.enabled() {
			return fmt.Errorf("kafka dispatch requires kafka brokers")
		}
	default:
		return fmt.Errorf("unsupported dispatch mode %q", cfg.Judge.Dispatch)
	}
	if cfg.Judge.WorkerPoolSize <= 0 {
		cfg.Judge.WorkerPoolSize = 4
	}
	if cfg.Judge.SubmissionTimeout == 0 {
		cfg.Judge.SubmissionTimeout = defaultSubmissionTimeout
	}
	if cfg.Judge.StatusTTL == 0 {
		cfg.Judge.StatusTTL = defaultStatusTTL
	}
	if cfg.Judge.MaxStdoutBytes <= 0 {
		cfg.Judge.MaxStdoutBytes = defaultMaxStdoutBytes
	}
	if cfg.Judge.MaxCodeBytes <= 0 {
		cfg.Judge.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Judge.DefaultLimits.TimeLimitMs <= 0 {
		cfg.Judge.DefaultLimits.TimeLimitMs = defaultTimeLimitMs
	}
	if cfg.Judge.DefaultLimits.MemoryLimitKB <= 0 {
		cfg.Judge.DefaultLimits.MemoryLimitKB = defaultMemoryLimitKB
	}

	if cfg.TestCases.KeyPrefix == "" {
		cfg.TestCases.KeyPrefix = "testcases"
	}

	if cfg.Kafka.JudgeTopic == "" {
		cfg.Kafka.JudgeTopic = "judge.dispatch"
	}
	if cfg.Kafka.RetryTopic == "" {
		cfg.Kafka.RetryTopic = "judge.retry"
	}
	if cfg.Kafka.StatusTopic == "" {
		cfg.Kafka.StatusTopic = "judge.status.final"
	}
	if cfg.Kafka.CleanupTopic == "" {
		cfg.Kafka.CleanupTopic = "testcase.archive.cleanup"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "judgebroker"
	}
	if cfg.Kafka.PoolRetryMax <= 0 {
		cfg.Kafka.PoolRetryMax = 5
	}
	if cfg.Kafka.PoolRetryBase == 0 {
		cfg.Kafka.PoolRetryBase = time.Second
	}
	if cfg.Kafka.PoolRetryMaxD == 0 {
		cfg.Kafka.PoolRetryMaxD = 30 * time.Second
	}

	if cfg.NATS.Timeout == 0 {
		cfg.NATS.Timeout = 5 * time.Second
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwtSecret is required")
	}
	return nil
}
