package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"reftester/internal/common/cache"
	"reftester/internal/common/db"
	"reftester/internal/common/mq"
	"reftester/internal/common/storage"
	"reftester/internal/judge/adapter"
	"reftester/internal/judge/model"
	"reftester/internal/judge/session"
	"reftester/internal/judge/transport"
	"reftester/internal/testfile"
	"reftester/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultScratchDir       = "tmp"
	defaultLoginInitial     = 2 * time.Second
	defaultLoginMultiplier  = 2
	defaultLoginMaxElapsed  = 65 * time.Second
	defaultRetryInitial     = 3 * time.Second
	defaultRetryMultiplier  = 10
	defaultRetryMaxElapsed  = 1000 * time.Second
	defaultPollInterval     = 2 * time.Second
	defaultPollTimeout      = 5 * time.Minute
	defaultPollMaxTransient = 3
	defaultHTTPTimeout      = 30 * time.Second
	defaultRPS              = 2
	defaultBurst            = 2
	defaultStorePath        = ".reftester/sessions.json"
	defaultStoreTTL         = 24 * time.Hour
)

const (
	storeNone  = "none"
	storeFile  = "file"
	storeRedis = "redis"
)

// StoreConfig selects where judge logins are persisted between runs.
type StoreConfig struct {
	Kind   string            `yaml:"kind"` // none, file, redis
	Path   string            `yaml:"path"`
	TTL    time.Duration     `yaml:"ttl"`
	Prefix string            `yaml:"prefix"`
	Redis  cache.RedisConfig `yaml:"redis"`
}

// SessionConfig holds login settings.
type SessionConfig struct {
	LoginInitial    time.Duration `yaml:"loginInitial"`
	LoginMultiplier float64       `yaml:"loginMultiplier"`
	LoginMaxElapsed time.Duration `yaml:"loginMaxElapsed"`
	Store           StoreConfig   `yaml:"store"`
}

// SubmissionConfig holds attempt retry and verdict polling settings.
type SubmissionConfig struct {
	RetryInitial     time.Duration `yaml:"retryInitial"`
	RetryMultiplier  float64       `yaml:"retryMultiplier"`
	RetryMaxElapsed  time.Duration `yaml:"retryMaxElapsed"`
	Jitter           float64       `yaml:"jitter"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	PollTimeout      time.Duration `yaml:"pollTimeout"`
	PollMaxTransient int           `yaml:"pollMaxTransient"`
}

// TransportConfig holds judge HTTP settings shared by every judge.
type TransportConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RPS       float64       `yaml:"rps"`
	Burst     int           `yaml:"burst"`
	UserAgent string        `yaml:"userAgent"`
}

// JudgeConfig holds per-judge settings.
type JudgeConfig struct {
	UserEnv     string         `yaml:"userEnv"`
	PasswordEnv string         `yaml:"passwordEnv"`
	BaseURL     string         `yaml:"baseURL"`
	Hosts       []string       `yaml:"hosts"`
	Options     map[string]any `yaml:"options"`
}

// ReportConfig holds the optional outcome sinks. A sink is enabled by its address.
type ReportConfig struct {
	Kafka mq.KafkaConfig      `yaml:"kafka"`
	MySQL db.MySQLConfig      `yaml:"mysql"`
	MinIO storage.MinIOConfig `yaml:"minio"`
}

// AppConfig holds reftester config.
type AppConfig struct {
	Logger      logger.Config          `yaml:"logger"`
	ScratchDir  string                 `yaml:"scratchDir"`
	Concurrency int                    `yaml:"concurrency"`
	TestFiles   testfile.Config        `yaml:"testFiles"`
	Session     SessionConfig          `yaml:"session"`
	Submission  SubmissionConfig       `yaml:"submission"`
	Transport   TransportConfig        `yaml:"transport"`
	Judges      map[string]JudgeConfig `yaml:"judges"`
	Report      ReportConfig           `yaml:"report"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the config file. A missing file is only an error when
// required is set; otherwise every section takes its defaults.
func loadAppConfig(path string, required bool) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			if required || !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) error {
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = defaultScratchDir
	}
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	if len(cfg.TestFiles.Extensions) == 0 {
		cfg.TestFiles.Extensions = testfile.DefaultExtensions
	}
	if cfg.TestFiles.IgnorePrefix == "" {
		cfg.TestFiles.IgnorePrefix = testfile.DefaultIgnorePrefix
	}

	s := &cfg.Session
	if s.LoginInitial == 0 {
		s.LoginInitial = defaultLoginInitial
	}
	if s.LoginMultiplier == 0 {
		s.LoginMultiplier = defaultLoginMultiplier
	}
	if s.LoginMaxElapsed == 0 {
		s.LoginMaxElapsed = defaultLoginMaxElapsed
	}
	switch s.Store.Kind {
	case "":
		s.Store.Kind = storeNone
	case storeNone:
	case storeFile:
		if s.Store.Path == "" {
			s.Store.Path = defaultStorePath
		}
	case storeRedis:
		if s.Store.Redis.Addr == "" {
			return fmt.Errorf("session.store.redis.addr is required")
		}
		applyRedisDefaults(&s.Store.Redis)
		if s.Store.TTL == 0 {
			s.Store.TTL = defaultStoreTTL
		}
	default:
		return fmt.Errorf("unknown session store kind %q", s.Store.Kind)
	}

	sub := &cfg.Submission
	if sub.RetryInitial == 0 {
		sub.RetryInitial = defaultRetryInitial
	}
	if sub.RetryMultiplier == 0 {
		sub.RetryMultiplier = defaultRetryMultiplier
	}
	if sub.RetryMaxElapsed == 0 {
		sub.RetryMaxElapsed = defaultRetryMaxElapsed
	}
	if sub.Jitter < 0 || sub.Jitter >= 1 {
		return fmt.Errorf("submission.jitter must be in [0, 1)")
	}
	if sub.PollInterval == 0 {
		sub.PollInterval = defaultPollInterval
	}
	if sub.PollTimeout == 0 {
		sub.PollTimeout = defaultPollTimeout
	}
	if sub.PollMaxTransient == 0 {
		sub.PollMaxTransient = defaultPollMaxTransient
	}

	t := &cfg.Transport
	if t.Timeout == 0 {
		t.Timeout = defaultHTTPTimeout
	}
	if t.RPS == 0 {
		t.RPS = defaultRPS
	}
	if t.Burst == 0 {
		t.Burst = defaultBurst
	}

	for name := range cfg.Judges {
		switch model.JudgeID(name) {
		case model.JudgeCodeforces, model.JudgeSpoj:
		default:
			return fmt.Errorf("unknown judge %q", name)
		}
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
}

func (t TransportConfig) toTransportConfig() transport.Config {
	return transport.Config{
		Timeout:   t.Timeout,
		RPS:       t.RPS,
		Burst:     t.Burst,
		UserAgent: t.UserAgent,
	}
}

func (c *AppConfig) adapterConfigs() map[model.JudgeID]adapter.JudgeConfig {
	out := make(map[model.JudgeID]adapter.JudgeConfig, len(c.Judges))
	for name, j := range c.Judges {
		out[model.JudgeID(name)] = adapter.JudgeConfig{
			BaseURL: j.BaseURL,
			Hosts:   j.Hosts,
			Options: j.Options,
		}
	}
	return out
}

// envVars starts from the built-in variable names and applies configured overrides.
func (c *AppConfig) envVars() map[model.JudgeID]session.EnvVars {
	vars := session.DefaultEnvVars()
	for name, j := range c.Judges {
		id := model.JudgeID(name)
		v := vars[id]
		if j.UserEnv != "" {
			v.User = j.UserEnv
		}
		if j.PasswordEnv != "" {
			v.Password = j.PasswordEnv
		}
		vars[id] = v
	}
	return vars
}
