// Package config loads Doradura's runtime configuration: scheduler tunables,
// per-plan rate-limit and size-cap tables, and phase timeouts. Values come
// from a JSON settings file with environment-variable overrides layered on
// top, following the teacher app's settings.json + env-override convention.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the external-interfaces configuration
// table. Default() seeds every field with its documented default.
type Config struct {
	DataDir      string `json:"dataDir"`
	DownloadsDir string `json:"downloadsDir"`

	MaxConcurrent        int `json:"maxConcurrent"`
	InterDispatchDelayMs int `json:"interDispatchDelayMs"`
	PollIntervalMs       int `json:"pollIntervalMs"`
	MaxRetries           int `json:"maxRetries"`
	MaxActiveJobsPerUser int `json:"maxActiveJobsPerUser"`

	RateLimitFreeSecs    int `json:"rateLimitFreeSecs"`
	RateLimitPremiumSecs int `json:"rateLimitPremiumSecs"`
	RateLimitVipSecs     int `json:"rateLimitVipSecs"`

	MaxFileSizeFreeMB    int `json:"maxFileSizeFreeMb"`
	MaxFileSizePremiumMB int `json:"maxFileSizePremiumMb"`
	MaxFileSizeVipMB     int `json:"maxFileSizeVipMb"`

	MetadataTimeoutSecs   int `json:"metadataTimeoutSecs"`
	DownloadTimeoutSecs   int `json:"downloadTimeoutSecs"`
	ProcessingTimeoutSecs int `json:"processingTimeoutSecs"`
	UploadTimeoutSecs     int `json:"uploadTimeoutSecs"`

	URLCacheTTLSecs int `json:"urlCacheTtlSecs"`

	ProxyMinHealth        float64  `json:"proxyMinHealth"`
	ProxyRefreshWindowSec int      `json:"proxyRefreshWindowSecs"`
	ProxyRatePerSecond    float64  `json:"proxyRatePerSecond"`
	Proxies               []string `json:"proxies"`
	ShutdownGraceSec      int      `json:"shutdownGraceSecs"`

	UploadMaxRetries int `json:"uploadMaxRetries"`

	FFmpegPath    string   `json:"ffmpegPath"`
	ExtractorPath string   `json:"extractorPath"`
	ExtractorHost []string `json:"extractorHostPatterns"`

	WhisperPath      string `json:"whisperPath"`
	WhisperModelPath string `json:"whisperModelPath"`
	WhisperLanguage  string `json:"whisperLanguage"`

	LogMaxSizeMB  int `json:"logMaxSizeMb"`
	LogMaxBackups int `json:"logMaxBackups"`

	mu       sync.RWMutex
	filePath string
}

// Default returns the configuration seeded with spec.md §6's documented
// defaults.
func Default() *Config {
	return &Config{
		MaxConcurrent:        2,
		InterDispatchDelayMs: 3000,
		PollIntervalMs:       100,
		MaxRetries:           3,
		MaxActiveJobsPerUser: 5,

		RateLimitFreeSecs:    30,
		RateLimitPremiumSecs: 10,
		RateLimitVipSecs:     5,

		MaxFileSizeFreeMB:    50,
		MaxFileSizePremiumMB: 500,
		MaxFileSizeVipMB:     2000,

		MetadataTimeoutSecs:   30,
		DownloadTimeoutSecs:   7200,
		ProcessingTimeoutSecs: 600,
		UploadTimeoutSecs:     120,

		URLCacheTTLSecs: 1800,

		ProxyMinHealth:        0.5,
		ProxyRefreshWindowSec: 300,
		ProxyRatePerSecond:    2,
		ShutdownGraceSec:      20,

		UploadMaxRetries: 3,

		FFmpegPath:    "ffmpeg",
		ExtractorPath: "yt-dlp",
		ExtractorHost: []string{
			`youtube\.com`, `youtu\.be`, `soundcloud\.com`,
		},

		WhisperPath:      "whisper-cli",
		WhisperModelPath: "",
		WhisperLanguage:  "auto",

		LogMaxSizeMB:  10,
		LogMaxBackups: 5,
	}
}

// Load reads settings.json from configDir, falling back to defaults when
// the file is missing or corrupt, loads a local .env file if present, then
// applies environment-variable overrides on top.
func Load(configDir string) (*Config, error) {
	filePath := filepath.Join(configDir, "settings.json")
	cfg := Default()
	cfg.filePath = filePath

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// File doesn't exist yet; caller may Save() it to create one.
	} else if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
		// Corrupt file: fall back to defaults but keep the path so a
		// subsequent Save() repairs it.
		cfg = Default()
		cfg.filePath = filePath
	}
	cfg.filePath = filePath

	// Best-effort .env load for local development; a missing file is not
	// treated as an error.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envInt(&cfg.MaxConcurrent, "MAX_CONCURRENT")
	envInt(&cfg.InterDispatchDelayMs, "INTER_DISPATCH_DELAY_MS")
	envInt(&cfg.PollIntervalMs, "POLL_INTERVAL_MS")
	envInt(&cfg.MaxRetries, "MAX_RETRIES")
	envInt(&cfg.MaxActiveJobsPerUser, "MAX_ACTIVE_JOBS_PER_USER")

	envInt(&cfg.RateLimitFreeSecs, "RATE_LIMIT_FREE_SECS")
	envInt(&cfg.RateLimitPremiumSecs, "RATE_LIMIT_PREMIUM_SECS")
	envInt(&cfg.RateLimitVipSecs, "RATE_LIMIT_VIP_SECS")

	envInt(&cfg.MaxFileSizeFreeMB, "MAX_FILE_SIZE_FREE_MB")
	envInt(&cfg.MaxFileSizePremiumMB, "MAX_FILE_SIZE_PREMIUM_MB")
	envInt(&cfg.MaxFileSizeVipMB, "MAX_FILE_SIZE_VIP_MB")

	envInt(&cfg.MetadataTimeoutSecs, "METADATA_TIMEOUT_SECS")
	envInt(&cfg.DownloadTimeoutSecs, "DOWNLOAD_TIMEOUT_SECS")
	envInt(&cfg.ProcessingTimeoutSecs, "PROCESSING_TIMEOUT_SECS")
	envInt(&cfg.UploadTimeoutSecs, "UPLOAD_TIMEOUT_SECS")

	envInt(&cfg.URLCacheTTLSecs, "URL_CACHE_TTL_SECS")
	envFloat(&cfg.ProxyMinHealth, "PROXY_MIN_HEALTH")
	envInt(&cfg.ProxyRefreshWindowSec, "PROXY_REFRESH_WINDOW_SECS")
	envFloat(&cfg.ProxyRatePerSecond, "PROXY_RATE_PER_SECOND")
	envInt(&cfg.ShutdownGraceSec, "SHUTDOWN_GRACE_SECS")
	envInt(&cfg.LogMaxSizeMB, "LOG_MAX_SIZE_MB")
	envInt(&cfg.LogMaxBackups, "LOG_MAX_BACKUPS")

	if v := os.Getenv("DORADURA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DORADURA_DOWNLOADS_DIR"); v != "" {
		cfg.DownloadsDir = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("EXTRACTOR_PATH"); v != "" {
		cfg.ExtractorPath = v
	}
	if v := os.Getenv("WHISPER_PATH"); v != "" {
		cfg.WhisperPath = v
	}
	if v := os.Getenv("WHISPER_MODEL_PATH"); v != "" {
		cfg.WhisperModelPath = v
	}
	if v := os.Getenv("WHISPER_LANGUAGE"); v != "" {
		cfg.WhisperLanguage = v
	}
	if v := os.Getenv("PROXIES"); v != "" {
		cfg.Proxies = strings.Split(v, ",")
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// Get returns a copy of the configuration safe for concurrent read.
func (c *Config) Get() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}

// MetadataTimeout returns the configured metadata-fetch phase timeout.
func (c *Config) MetadataTimeout() time.Duration {
	return time.Duration(c.MetadataTimeoutSecs) * time.Second
}

// DownloadTimeout returns the configured download phase timeout.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSecs) * time.Second
}

// ProcessingTimeout returns the configured post-processing phase timeout.
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSecs) * time.Second
}

// UploadTimeout returns the configured per-attempt delivery timeout.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSecs) * time.Second
}

// InterDispatchDelay returns the pacing delay the Scheduler Loop enforces
// between successive dispatches.
func (c *Config) InterDispatchDelay() time.Duration {
	return time.Duration(c.InterDispatchDelayMs) * time.Millisecond
}

// PollInterval returns the idle-poll backoff when the queue is empty.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ProxyRefreshWindow returns how long an unhealthy proxy is skipped before
// the extractor source gives it another chance.
func (c *Config) ProxyRefreshWindow() time.Duration {
	return time.Duration(c.ProxyRefreshWindowSec) * time.Second
}

// URLCacheTTL returns the URL Cache entry lifetime.
func (c *Config) URLCacheTTL() time.Duration {
	return time.Duration(c.URLCacheTTLSecs) * time.Second
}

// ShutdownGrace returns how long a graceful shutdown waits for in-flight
// Workers before rolling them back to pending.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}
