package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tanq16/rangeflow/internal/engine"
	"github.com/tanq16/rangeflow/internal/utils"
)

// Config defines configuration for the rangeflow server and CLI.
type Config struct {
	StorageRoot      string            `yaml:"storage_root"`
	Listen           string            `yaml:"listen"`
	MaxDownloads     int               `yaml:"max_downloads"`
	QueueSize        int               `yaml:"queue_size"`
	DefaultWorkers   int               `yaml:"default_workers"`
	ConnectTimeout   time.Duration     `yaml:"connect_timeout"`
	ReadTimeout      time.Duration     `yaml:"read_timeout"`
	KeepAliveTimeout time.Duration     `yaml:"keep_alive_timeout"`
	UserAgent        string            `yaml:"user_agent"`
	Insecure         bool              `yaml:"insecure"`
	Proxy            string            `yaml:"proxy"`
	ProxyUsername    string            `yaml:"proxy_username"`
	ProxyPassword    string            `yaml:"proxy_password"`
	Headers          map[string]string `yaml:"headers"`
	Retry            RetryConfig       `yaml:"retry"`
	ProgressInterval time.Duration     `yaml:"progress_interval"`
	BufferSize       int               `yaml:"buffer_size"`
	StoreFile        string            `yaml:"store_file"`
	S3               S3Config          `yaml:"s3"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type S3Config struct {
	Profile    string        `yaml:"profile"`
	Region     string        `yaml:"region"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// Default returns a Config with the stock limits.
func Default() Config {
	return Config{
		StorageRoot:      "downloads",
		Listen:           ":8080",
		MaxDownloads:     4,
		QueueSize:        16,
		DefaultWorkers:   4,
		ConnectTimeout:   utils.DefaultConnectTimeout,
		ReadTimeout:      utils.DefaultReadTimeout,
		KeepAliveTimeout: utils.DefaultKATimeout,
		UserAgent:        utils.DefaultUserAgent,
		Retry: RetryConfig{
			Attempts: utils.DefaultRetryAttempts,
			Backoff:  utils.DefaultRetryBackoff,
		},
		ProgressInterval: utils.DefaultProgressInterval,
		BufferSize:       utils.DefaultBufferSize,
		S3:               S3Config{PresignTTL: 12 * time.Hour},
	}
}

// LoadFromFile reads a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies RANGEFLOW_ prefixed environment variables.
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"RANGEFLOW_STORAGE_ROOT":   &c.StorageRoot,
		"RANGEFLOW_LISTEN":         &c.Listen,
		"RANGEFLOW_USER_AGENT":     &c.UserAgent,
		"RANGEFLOW_PROXY":          &c.Proxy,
		"RANGEFLOW_PROXY_USERNAME": &c.ProxyUsername,
		"RANGEFLOW_PROXY_PASSWORD": &c.ProxyPassword,
		"RANGEFLOW_STORE_FILE":     &c.StoreFile,
		"RANGEFLOW_S3_PROFILE":     &c.S3.Profile,
		"RANGEFLOW_S3_REGION":      &c.S3.Region,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"RANGEFLOW_MAX_DOWNLOADS":   &c.MaxDownloads,
		"RANGEFLOW_QUEUE_SIZE":      &c.QueueSize,
		"RANGEFLOW_DEFAULT_WORKERS": &c.DefaultWorkers,
		"RANGEFLOW_RETRY_ATTEMPTS":  &c.Retry.Attempts,
		"RANGEFLOW_BUFFER_SIZE":     &c.BufferSize,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = n
		}
	}
	durations := map[string]*time.Duration{
		"RANGEFLOW_CONNECT_TIMEOUT":    &c.ConnectTimeout,
		"RANGEFLOW_READ_TIMEOUT":       &c.ReadTimeout,
		"RANGEFLOW_KEEP_ALIVE_TIMEOUT": &c.KeepAliveTimeout,
		"RANGEFLOW_RETRY_BACKOFF":      &c.Retry.Backoff,
		"RANGEFLOW_PROGRESS_INTERVAL":  &c.ProgressInterval,
		"RANGEFLOW_S3_PRESIGN_TTL":     &c.S3.PresignTTL,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dst = d
		}
	}
	if v := os.Getenv("RANGEFLOW_INSECURE"); v != "" {
		c.Insecure = v == "true" || v == "1"
	}
	return nil
}

// Validate checks the limits the engine depends on.
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return errors.New("config: storage_root is required")
	}
	if c.MaxDownloads <= 0 {
		return errors.New("config: max_downloads must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("config: queue_size must be positive")
	}
	if c.DefaultWorkers < utils.MinWorkers || c.DefaultWorkers > utils.MaxWorkers {
		return fmt.Errorf("config: default_workers must be within [%d, %d]", utils.MinWorkers, utils.MaxWorkers)
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Backoff < 0 {
		return errors.New("config: retry.backoff must not be negative")
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	return nil
}

// Merge returns c with the non-zero fields of override applied.
func (c Config) Merge(override Config) Config {
	if override.StorageRoot != "" {
		c.StorageRoot = override.StorageRoot
	}
	if override.Listen != "" {
		c.Listen = override.Listen
	}
	if override.MaxDownloads != 0 {
		c.MaxDownloads = override.MaxDownloads
	}
	if override.QueueSize != 0 {
		c.QueueSize = override.QueueSize
	}
	if override.DefaultWorkers != 0 {
		c.DefaultWorkers = override.DefaultWorkers
	}
	if override.ConnectTimeout != 0 {
		c.ConnectTimeout = override.ConnectTimeout
	}
	if override.ReadTimeout != 0 {
		c.ReadTimeout = override.ReadTimeout
	}
	if override.KeepAliveTimeout != 0 {
		c.KeepAliveTimeout = override.KeepAliveTimeout
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.Insecure {
		c.Insecure = true
	}
	if override.Proxy != "" {
		c.Proxy = override.Proxy
	}
	if override.ProxyUsername != "" {
		c.ProxyUsername = override.ProxyUsername
	}
	if override.ProxyPassword != "" {
		c.ProxyPassword = override.ProxyPassword
	}
	if len(override.Headers) > 0 {
		merged := make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			merged[k] = v
		}
		for k, v := range override.Headers {
			merged[k] = v
		}
		c.Headers = merged
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.ProgressInterval != 0 {
		c.ProgressInterval = override.ProgressInterval
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.StoreFile != "" {
		c.StoreFile = override.StoreFile
	}
	if override.S3.Profile != "" {
		c.S3.Profile = override.S3.Profile
	}
	if override.S3.Region != "" {
		c.S3.Region = override.S3.Region
	}
	if override.S3.PresignTTL != 0 {
		c.S3.PresignTTL = override.S3.PresignTTL
	}
	return c
}

// HTTPClient derives the connection settings. highThread turns on socket
// tuning for downloads with many parallel connections.
func (c Config) HTTPClient(highThread bool) utils.HTTPClientConfig {
	cfg := utils.HTTPClientConfig{
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		KATimeout:      c.KeepAliveTimeout,
		ProxyURL:       c.Proxy,
		ProxyUsername:  c.ProxyUsername,
		ProxyPassword:  c.ProxyPassword,
		UserAgent:      c.UserAgent,
		Headers:        c.Headers,
		HighThreadMode: highThread,
	}
	if c.Insecure {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return cfg
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		StorageRoot:      c.StorageRoot,
		DefaultWorkers:   c.DefaultWorkers,
		MaxDownloads:     c.MaxDownloads,
		QueueSize:        c.QueueSize,
		RetryAttempts:    c.Retry.Attempts,
		RetryBackoff:     c.Retry.Backoff,
		ProgressInterval: c.ProgressInterval,
		BufferSize:       c.BufferSize,
	}
}
