package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "zh-CN,zh;q=0.9,en;q=0.8"
	DefaultChunkSize      = 80 * 1024
)

type S3Config struct {
	ApiURL    string
	AccessKey string
	SecretKey string
	Region    string
}

type Config struct {
	BaseURL         string
	Password        string
	Token           string
	RemoteRoot      string
	Destination     string
	UserAgent       string
	AcceptLanguage  string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	FileDelay       time.Duration
	ChunkSize       int
	Workers         int
	RetryAttempts   int
	Include         []string
	Exclude         []string
	S3              S3Config
}

// env names bound to config keys.
var envBindings = map[string]string{
	"base_url":         "ALIST_BASE_URL",
	"password":         "ALIST_PASSWORD",
	"token":            "ALIST_TOKEN",
	"remote_root":      "ALIST_REMOTE_ROOT",
	"destination":      "MIRROR_DESTINATION",
	"user_agent":       "MIRROR_USER_AGENT",
	"accept_language":  "MIRROR_ACCEPT_LANGUAGE",
	"request_timeout":  "MIRROR_REQUEST_TIMEOUT",
	"download_timeout": "MIRROR_DOWNLOAD_TIMEOUT",
	"file_delay":       "MIRROR_FILE_DELAY",
	"chunk_size":       "MIRROR_CHUNK_SIZE",
	"workers":          "MIRROR_WORKERS",
	"retry_attempts":   "MIRROR_RETRY_ATTEMPTS",
	"include":          "MIRROR_INCLUDE",
	"exclude":          "MIRROR_EXCLUDE",
	"s3.api_url":       "S3_API_URL",
	"s3.access_key":    "S3_ACCESS_KEY",
	"s3.secret_key":    "S3_SECRET_KEY",
	"s3.region":        "S3_REGION",
}

// Load reads .env, the environment and, when path or MIRROR_CONFIG is set,
// a config file. Environment values win over the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment variables only")
	}
	if path == "" {
		path = getEnv("MIRROR_CONFIG", "")
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	config := &Config{
		BaseURL:         strings.TrimRight(v.GetString("base_url"), "/"),
		Password:        v.GetString("password"),
		Token:           v.GetString("token"),
		RemoteRoot:      v.GetString("remote_root"),
		Destination:     v.GetString("destination"),
		UserAgent:       v.GetString("user_agent"),
		AcceptLanguage:  v.GetString("accept_language"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		DownloadTimeout: v.GetDuration("download_timeout"),
		FileDelay:       v.GetDuration("file_delay"),
		ChunkSize:       v.GetInt("chunk_size"),
		Workers:         v.GetInt("workers"),
		RetryAttempts:   v.GetInt("retry_attempts"),
		Include:         splitPatterns(v.GetStringSlice("include")),
		Exclude:         splitPatterns(v.GetStringSlice("exclude")),
		S3: S3Config{
			ApiURL:    v.GetString("s3.api_url"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
			Region:    v.GetString("s3.region"),
		},
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote_root", "/")
	v.SetDefault("destination", ".")
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("accept_language", DefaultAcceptLanguage)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("download_timeout", 30*time.Second)
	v.SetDefault("file_delay", 100*time.Millisecond)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("workers", 1)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("s3.region", "us-east-1")
}

// splitPatterns accepts both list values from a config file and a single
// comma separated env value.
func splitPatterns(values []string) []string {
	var patterns []string
	for _, value := range values {
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
	}
	return patterns
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("config: base url %q must start with http:// or https://", c.BaseURL)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("config: chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("config: retry attempts must not be negative, got %d", c.RetryAttempts)
	}
	if c.FileDelay < 0 {
		return errors.New("config: file delay must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
