package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the genforge server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Wavespeed WavespeedConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Artifacts ArtifactConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	// TrustedProxies are the peers whose X-Forwarded-For / X-Real-IP headers
	// are believed. Empty means the connection address is always the client.
	TrustedProxies []netip.Prefix
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// WavespeedConfig configures the media generation provider.
type WavespeedConfig struct {
	BaseURL        string
	APIKey         string
	PollInterval   time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Referer    string
	Title      string
	Timeout    time.Duration
	MaxRetries int
}

// StorageConfig configures the S3-compatible bucket that hosts images handed to the provider.
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
	Prefix        string
	// UploadConcurrency bounds parallel uploads within one task.
	UploadConcurrency int
}

type ArtifactConfig struct {
	DataDir         string
	FailurePolicy   string
	DownloadTimeout time.Duration
}

type WorkerConfig struct {
	Concurrency       int
	Queue             string
	MaxRetry          int
	TaskTimeout       time.Duration
	HeartbeatInterval time.Duration
	InFlightTTL       time.Duration
	StaleAfter        time.Duration
	ReaperInterval    time.Duration
	MaxRequeues       int
}

var validFailurePolicies = map[string]bool{
	"fail":     true,
	"fallback": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("GENFORGE_PORT", 8080),
			Env:                envString("GENFORGE_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Wavespeed: WavespeedConfig{
			BaseURL:        strings.TrimRight(envString("WAVESPEED_BASE_URL", "https://api.wavespeed.ai/api/v3"), "/"),
			APIKey:         os.Getenv("WAVESPEED_API_KEY"),
			PollInterval:   envDuration("WAVESPEED_POLL_INTERVAL", 500*time.Millisecond),
			MaxWait:        envDurationSecs("WAVESPEED_MAX_WAIT_SECS", 300*time.Second),
			RequestTimeout: envDuration("WAVESPEED_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:     envInt("WAVESPEED_MAX_RETRIES", 3),
		},
		LLM: LLMConfig{
			BaseURL:    strings.TrimRight(envString("LLM_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
			APIKey:     os.Getenv("LLM_API_KEY"),
			Model:      envString("LLM_MODEL", "openai/gpt-4o"),
			Referer:    envString("LLM_HTTP_REFERER", "http://localhost:8080"),
			Title:      envString("LLM_X_TITLE", "genforge"),
			Timeout:    envDurationSecs("LLM_TIMEOUT_SECS", 120*time.Second),
			MaxRetries: envInt("LLM_MAX_RETRIES", 2),
		},
		Storage: StorageConfig{
			Endpoint:          os.Getenv("STORAGE_ENDPOINT"),
			AccessKey:         os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:         os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:            os.Getenv("STORAGE_BUCKET"),
			UseSSL:            envBool("STORAGE_USE_SSL", true),
			PublicBaseURL:     strings.TrimRight(os.Getenv("STORAGE_PUBLIC_BASE_URL"), "/"),
			Prefix:            envString("STORAGE_PREFIX", "genforge"),
			UploadConcurrency: envInt("STORAGE_UPLOAD_CONCURRENCY", 4),
		},
		Artifacts: ArtifactConfig{
			DataDir:         envString("DATA_DIR", "data"),
			FailurePolicy:   envString("ARTIFACT_DOWNLOAD_FAILURE_POLICY", "fail"),
			DownloadTimeout: envDurationSecs("ARTIFACT_DOWNLOAD_TIMEOUT_SECS", 300*time.Second),
		},
		Worker: WorkerConfig{
			Concurrency:       envInt("WORKER_CONCURRENCY", 10),
			Queue:             envString("WORKER_QUEUE", "generation"),
			MaxRetry:          envInt("WORKER_MAX_RETRY", 3),
			TaskTimeout:       envDuration("WORKER_TASK_TIMEOUT", 15*time.Minute),
			HeartbeatInterval: envDuration("WORKER_HEARTBEAT_INTERVAL", 30*time.Second),
			InFlightTTL:       envDuration("WORKER_INFLIGHT_TTL", 2*time.Minute),
			StaleAfter:        envDuration("TASK_STALE_AFTER", 30*time.Minute),
			ReaperInterval:    envDuration("REAPER_INTERVAL", time.Minute),
			MaxRequeues:       envInt("REAPER_MAX_REQUEUES", 1),
		},
	}

	proxies, err := parseProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.Server.TrustedProxies = proxies

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseProxies reads a comma-separated list of CIDRs or bare addresses.
func parseProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", item)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", item)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Wavespeed.APIKey == "" {
		return fmt.Errorf("WAVESPEED_API_KEY is required")
	}
	if !isHTTPURL(c.Wavespeed.BaseURL) {
		return fmt.Errorf("WAVESPEED_BASE_URL must start with http:// or https://, got %q", c.Wavespeed.BaseURL)
	}
	if c.Wavespeed.PollInterval <= 0 {
		return fmt.Errorf("WAVESPEED_POLL_INTERVAL must be positive")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if !isHTTPURL(c.LLM.BaseURL) {
		return fmt.Errorf("LLM_BASE_URL must start with http:// or https://, got %q", c.LLM.BaseURL)
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("STORAGE_ENDPOINT is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return fmt.Errorf("STORAGE_ACCESS_KEY and STORAGE_SECRET_KEY are required")
	}

	if !validFailurePolicies[c.Artifacts.FailurePolicy] {
		return fmt.Errorf("ARTIFACT_DOWNLOAD_FAILURE_POLICY must be one of fail, fallback; got %q", c.Artifacts.FailurePolicy)
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.HeartbeatInterval >= c.Worker.InFlightTTL {
		return fmt.Errorf("WORKER_HEARTBEAT_INTERVAL (%s) must be shorter than WORKER_INFLIGHT_TTL (%s)",
			c.Worker.HeartbeatInterval, c.Worker.InFlightTTL)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
