package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

const (
	EnvAPIKey     = "SEVENTEEN_TRACK_API_KEY"
	EnvDBPath     = "PACKTRACK_DB_PATH"
	EnvConfigPath = "configPath"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Tracker  TrackerConfig  `yaml:"tracker"`
}

type StorageConfig struct {
	Driver           string `yaml:"driver"` // "sqlite" | "postgres"
	Path             string `yaml:"path"`
	LockPath         string `yaml:"lock_path"`
	LockStaleSeconds int    `yaml:"lock_stale_seconds"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds the postgres DSN; an empty ssl_mode means "disable".
func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

// Kafka is optional: with no host the relay sink and the relay command are off.
type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	PackageUpdatedTopicName string `yaml:"package_updated_topic_name"`
	ConsumerGroup           string `yaml:"consumer_group"`
}

func (k KafkaConfig) Enabled() bool { return k.Host != "" }

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

// Redis is optional as well: it backs the provider throttle and the quota cache.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

type TrackerConfig struct {
	Provider string `yaml:"provider"` // "17track" | "fake"
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	TimeoutSeconds     int `yaml:"timeout_seconds"`
	BatchSize          int `yaml:"batch_size"`
	Concurrency        int `yaml:"concurrency"`
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`

	RetryMaxAttempts     int `yaml:"retry_max_attempts"`
	RetryBaseDelayMillis int `yaml:"retry_base_delay_millis"`

	QuotaTotal           int `yaml:"quota_total"`
	QuotaWarnThreshold   int `yaml:"quota_warn_threshold"`
	QuotaCacheTTLSeconds int `yaml:"quota_cache_ttl_seconds"`

	WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	WatchHTTPAddr        string `yaml:"watch_http_addr"`

	DesktopNotifications bool `yaml:"desktop_notifications"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// Load is what the CLI uses: .env files, then the YAML file (optional), then
// environment overrides. An empty path falls back to $configPath; no path at
// all yields a zero config that the caller fills with defaults.
func Load(path string) (*Config, error) {
	LoadDotEnv()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := &Config{}
	if path != "" {
		c, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadDotEnv reads ./.env and ~/.config/packtrack/.env. Variables already set
// in the environment win; missing files are fine.
func LoadDotEnv() {
	for _, p := range dotEnvPaths() {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func dotEnvPaths() []string {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "packtrack", ".env"))
	}
	return paths
}

func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.Tracker.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		c.Storage.Path = v
	}
}

// DefaultDataDir is ~/.local/share/packtrack, or the working dir when there is no home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "packtrack")
}
