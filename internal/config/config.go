package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mail-summary-service/internal/runner"
	"mail-summary-service/internal/summarizer"
	"mail-summary-service/pkg/config"
	"mail-summary-service/pkg/otel"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// JobConfig 任务存储与执行相关配置
type JobConfig struct {
	Store          string          `yaml:"store"` // memory | redis
	TTL            time.Duration   `yaml:"ttl"`   // 仅 redis 生效，0 表示不过期
	MaxUploadBytes int64           `yaml:"max_upload_bytes"`
	Progress       runner.Progress `yaml:"progress"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

type Config struct {
	Server config.ServerConfig `yaml:"server"`
	Gemini summarizer.Config   `yaml:"gemini"`
	Job    JobConfig           `yaml:"job"`
	Redis  config.RedisConfig  `yaml:"redis"`
	MQ     config.MQConfig     `yaml:"mq"`
	DB     config.DBConfig     `yaml:"db"`
	Otel   otel.Config         `yaml:"otel"`
	CORS   CORSConfig          `yaml:"cors"`
	Log    LogConfig           `yaml:"log"`
}

// Default 配置文件缺省字段使用的默认值
func Default() *Config {
	return &Config{
		Server: config.ServerConfig{Port: ":8000"},
		Gemini: summarizer.Config{
			BaseURL: summarizer.DefaultBaseURL,
			Model:   summarizer.DefaultModel,
			Timeout: 60 * time.Second,
		},
		Job: JobConfig{
			Store:          StoreMemory,
			TTL:            24 * time.Hour,
			MaxUploadBytes: 10 << 20,
			Progress:       runner.DefaultProgress(),
		},
		Redis: config.RedisConfig{Addr: "localhost:6379"},
		Otel: otel.Config{
			ServiceName:    "mail-summary-service",
			ServiceVersion: "1.0.0",
		},
		CORS: CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load 从 CONFIG_DIR（默认 config）按 CONFIG_ENV 加载配置
func Load() (*Config, error) {
	return LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, configDir string) (*Config, error) {
	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 转换为 Config 结构
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(cfgData, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideDBFromEnv(&cfg.DB)
	overrideGeminiFromEnv(&cfg.Gemini)
	if store := os.Getenv("JOB_STORE"); store != "" {
		cfg.Job.Store = store
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideGeminiFromEnv(cfg *summarizer.Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.Model = model
	}
	if timeout := os.Getenv("GEMINI_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = d
		}
	}
}

// Validate 检查配置是否可用。缺少 GEMINI_API_KEY 不算错误
func (c *Config) Validate() error {
	c.Job.Store = strings.ToLower(strings.TrimSpace(c.Job.Store))
	if c.Job.Store != StoreMemory && c.Job.Store != StoreRedis {
		return fmt.Errorf("invalid job.store %q: want %q or %q", c.Job.Store, StoreMemory, StoreRedis)
	}
	if c.Job.MaxUploadBytes <= 0 {
		return fmt.Errorf("job.max_upload_bytes must be positive, got %d", c.Job.MaxUploadBytes)
	}
	p := c.Job.Progress
	if p.Started < 0 || p.Started > p.WarmedUp || p.WarmedUp > p.Responded || p.Responded >= 100 {
		return fmt.Errorf("job.progress checkpoints must satisfy 0 <= started <= warmed_up <= responded < 100, got %d/%d/%d",
			p.Started, p.WarmedUp, p.Responded)
	}
	if p.WarmupDelay < 0 {
		return fmt.Errorf("job.progress.warmup_delay must not be negative")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	return nil
}
