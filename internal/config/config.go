package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Vision   VisionConfig   `yaml:"vision"`
	Profile  ProfileConfig  `yaml:"profile"`
	Activity ActivityConfig `yaml:"activity"`
	Locks    LocksConfig    `yaml:"locks"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr string     `yaml:"addr"`
	Cors CorsConfig `yaml:"cors"`
	// MaxUploadMB caps the multipart body accepted by bulk import.
	MaxUploadMB int `yaml:"maxUploadMB"`
}

type CorsConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

type VisionConfig struct {
	BaseURL string `yaml:"baseURL"`
	// Token is normally left empty and supplied through VISION_TOKEN or the
	// api_keys settings row.
	Token     string  `yaml:"token"`
	FolderID  string  `yaml:"folderId"`
	ProxyID   string  `yaml:"proxyId"`
	TimeoutMs int     `yaml:"timeoutMs"`
	QPS       float64 `yaml:"qps"`
	Burst     int     `yaml:"burst"`
}

func (c VisionConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type ProfileConfig struct {
	// DeleteOnSyncFailure makes sync-and-delete remove the remote profile even
	// when the preceding cookie sync failed. The cookies are lost in that case.
	DeleteOnSyncFailure bool `yaml:"deleteOnSyncFailure"`
}

type ActivityConfig struct {
	IdleHours int `yaml:"idleHours"`
}

func (c ActivityConfig) IdleThreshold() time.Duration {
	if c.IdleHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.IdleHours) * time.Hour
}

type LocksConfig struct {
	// RedisURL enables cross-process account locks. Empty means in-process.
	RedisURL string `yaml:"redisURL"`
	TTLMs    int    `yaml:"ttlMs"`
}

func (c LocksConfig) TTL() time.Duration {
	if c.TTLMs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TTLMs) * time.Millisecond
}

type NotifyConfig struct {
	// SummarySeconds groups import reports finished within this window into
	// one mail. Negative sends every report on its own.
	SummarySeconds int `yaml:"summarySeconds"`
}

func (c NotifyConfig) SummaryWindow() time.Duration {
	switch {
	case c.SummarySeconds < 0:
		return 0
	case c.SummarySeconds == 0:
		return 20 * time.Second
	case c.SummarySeconds > 600:
		return 600 * time.Second
	}
	return time.Duration(c.SummarySeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Load(path string) (Config, error) {
	// .env is optional; it only feeds the environment overrides below.
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("VISION_TOKEN")); v != "" {
		c.Vision.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("VISION_BASE_URL")); v != "" {
		c.Vision.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SQLITE_PATH")); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		c.Locks.RedisURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 32
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "./data/account_sync.db"
	}
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = "https://v1.empr.cloud/api/v1"
	}
	if c.Vision.FolderID == "" {
		c.Vision.FolderID = "9948309f-9b50-4a1b-9345-c1102562d53b"
	}
	if c.Vision.ProxyID == "" {
		c.Vision.ProxyID = "321f36e7-2a6d-4142-a559-3e32f282eafd"
	}
	if c.Vision.QPS <= 0 {
		c.Vision.QPS = 5
	}
	if c.Vision.Burst <= 0 {
		c.Vision.Burst = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Vision.BaseURL == "" {
		return errors.New("vision.baseURL is required")
	}
	if c.Vision.FolderID == "" {
		return errors.New("vision.folderId is required")
	}
	return nil
}
