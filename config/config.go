// Package config 是服务配置（koanf：默认值 → YAML 文件 → RMS_* 环境变量）与 pipeline Node 注册表。
package config

import (
	"time"

	"github.com/louhangyu/zhipu/datasource"
	"github.com/louhangyu/zhipu/service"
)

// Config 是服务的全部配置。
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Logging   LoggingConfig             `koanf:"logging"`
	Store     StoreConfig               `koanf:"store"`
	Database  datasource.Options        `koanf:"database"`
	Dataset   datasource.DatasetOptions `koanf:"dataset"`
	Services  ServicesConfig            `koanf:"services"`
	Recall    RecallConfig              `koanf:"recall"`
	Train     TrainConfig               `koanf:"train"`
	Model     ModelConfig               `koanf:"model"`
	Schedule  ScheduleConfig            `koanf:"schedule"`
	Pipelines PipelinesConfig           `koanf:"pipelines"`
}

// ServerConfig 是 HTTP 服务配置。
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig 是日志配置。
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig 是缓存存储配置。
type StoreConfig struct {
	Backend   string      `koanf:"backend" validate:"oneof=memory redis badger"`
	Redis     RedisConfig `koanf:"redis"`
	BadgerDir string      `koanf:"badger_dir" validate:"required_if=Backend badger"`
}

// RedisConfig 是 Redis 连接配置。
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
	PoolSize int    `koanf:"pool_size" validate:"gte=0"`
}

// ServicesConfig 是外部 HTTP 协作方配置，Endpoint 为空的服务不启用。
type ServicesConfig struct {
	Search          service.ServiceConfig `koanf:"search"`
	Embedding       service.ServiceConfig `koanf:"embedding"`
	Translate       service.ServiceConfig `koanf:"translate"`
	Venue           service.ServiceConfig `koanf:"venue"`
	QuartileTimeout time.Duration         `koanf:"quartile_timeout"`
}

// RecallConfig 是召回配置。
type RecallConfig struct {
	// Timeout 是单个召回源的超时
	Timeout time.Duration `koanf:"timeout"`
	// MaxConcurrent 是单个用户并发执行的召回源数
	MaxConcurrent int `koanf:"max_concurrent" validate:"gte=0"`
	// NeighboursPath 是关键词近邻表（YAML），为空时不扩展
	NeighboursPath string `koanf:"neighbours_path"`
	// ShenzhenDomains 是深圳策略检索的领域关键词
	ShenzhenDomains []string `koanf:"shenzhen_domains"`
}

// TrainConfig 是离线训练与更新配置。
type TrainConfig struct {
	Workers    int           `koanf:"workers" validate:"gte=1"`
	JobTimeout time.Duration `koanf:"job_timeout" validate:"gt=0"`
	// ActiveDays / UDActiveDays / UDMinDays 定义活跃用户
	ActiveDays   int `koanf:"active_days" validate:"gte=1"`
	UDActiveDays int `koanf:"ud_active_days" validate:"gte=1"`
	UDMinDays    int `koanf:"ud_min_days" validate:"gte=0"`
}

// ModelConfig 是模型文件配置，为空表示不启用。
type ModelConfig struct {
	// AffinityLRPath 是召回类型偏好 LR 模型
	AffinityLRPath string `koanf:"affinity_lr_path"`
	// PriorLRPath 是点击率先验 LR 模型
	PriorLRPath string `koanf:"prior_lr_path"`
}

// ScheduleConfig 是定时任务的 cron 表达式，为空表示不调度。
type ScheduleConfig struct {
	Train        string `koanf:"train"`
	TrainKeyword string `koanf:"train_keyword"`
	Quality      string `koanf:"quality"`
	Affinity     string `koanf:"affinity"`
}

// PipelinesConfig 是 pipeline YAML 路径，为空时使用内置链路。
type PipelinesConfig struct {
	ServePath string `koanf:"serve_path"`
	TrainPath string `koanf:"train_path"`
}

// defaultConfig 返回默认配置，文件与环境变量在其上覆盖。
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "127.0.0.1:6379", PoolSize: 50},
		},
		Database: datasource.Options{
			Driver:          "sqlite",
			DSN:             "file:rms.db?_pragma=busy_timeout(5000)",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			Migrate:         true,
		},
		Dataset: datasource.DatasetOptions{
			CacheDir: "data",
			Timeout:  5 * time.Minute,
		},
		Services: ServicesConfig{
			Search:          service.ServiceConfig{Type: service.ServiceTypeSearch, Timeout: 10 * time.Second},
			Embedding:       service.ServiceConfig{Type: service.ServiceTypeEmbedding, Timeout: 10 * time.Second},
			Translate:       service.ServiceConfig{Type: service.ServiceTypeTranslate, Timeout: 5 * time.Second},
			Venue:           service.ServiceConfig{Type: service.ServiceTypeVenue, Timeout: 30 * time.Second},
			QuartileTimeout: 5 * time.Second,
		},
		Recall: RecallConfig{
			Timeout:       30 * time.Second,
			MaxConcurrent: 8,
		},
		Train: TrainConfig{
			Workers:      8,
			JobTimeout:   8 * time.Hour,
			ActiveDays:   10,
			UDActiveDays: 7,
			UDMinDays:    3,
		},
		Schedule: ScheduleConfig{
			Train:        "0 2 * * *",
			TrainKeyword: "0 4 * * *",
			Quality:      "30 1 * * *",
			Affinity:     "0 1 * * *",
		},
	}
}
