package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "test_value")
	defer os.Unsetenv("TEST_VAR")

	result := getEnv("TEST_VAR", "default_value")
	if result != "test_value" {
		t.Errorf("getEnv() = %s, want %s", result, "test_value")
	}

	result = getEnv("NON_EXISTENT_VAR", "default_value")
	if result != "default_value" {
		t.Errorf("getEnv() = %s, want %s", result, "default_value")
	}

	os.Setenv("EMPTY_VAR", "")
	defer os.Unsetenv("EMPTY_VAR")

	result = getEnv("EMPTY_VAR", "default_value")
	if result != "default_value" {
		t.Errorf("getEnv() = %s, want %s", result, "default_value")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	t.Setenv("MIRROR_CONFIG", "")
	os.Unsetenv("MIRROR_CONFIG")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.RemoteRoot != "/" {
		t.Errorf("RemoteRoot = %s, want /", config.RemoteRoot)
	}
	if config.Destination != "." {
		t.Errorf("Destination = %s, want .", config.Destination)
	}
	if config.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", config.RequestTimeout)
	}
	if config.DownloadTimeout != 30*time.Second {
		t.Errorf("DownloadTimeout = %v, want 30s", config.DownloadTimeout)
	}
	if config.FileDelay != 100*time.Millisecond {
		t.Errorf("FileDelay = %v, want 100ms", config.FileDelay)
	}
	if config.ChunkSize != 81920 {
		t.Errorf("ChunkSize = %d, want 81920", config.ChunkSize)
	}
	if config.Workers != 1 {
		t.Errorf("Workers = %d, want 1", config.Workers)
	}
	if config.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %s, want default", config.UserAgent)
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	testVars := map[string]string{
		"ALIST_BASE_URL":     "https://pan.example.com/",
		"ALIST_PASSWORD":     "secret",
		"ALIST_REMOTE_ROOT":  "/share",
		"MIRROR_DESTINATION": "/tmp/mirror",
		"MIRROR_WORKERS":     "4",
		"MIRROR_FILE_DELAY":  "250ms",
		"MIRROR_EXCLUDE":     "*.tmp, **/cache/**",
		"S3_API_URL":         "https://s3.example.com",
		"S3_ACCESS_KEY":      "test-access-key",
		"S3_SECRET_KEY":      "test-secret-key",
	}
	for key, value := range testVars {
		t.Setenv(key, value)
	}

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.BaseURL != "https://pan.example.com" {
		t.Errorf("BaseURL = %s, want %s", config.BaseURL, "https://pan.example.com")
	}
	if config.Password != "secret" {
		t.Errorf("Password = %s, want %s", config.Password, "secret")
	}
	if config.RemoteRoot != "/share" {
		t.Errorf("RemoteRoot = %s, want %s", config.RemoteRoot, "/share")
	}
	if config.Destination != "/tmp/mirror" {
		t.Errorf("Destination = %s, want %s", config.Destination, "/tmp/mirror")
	}
	if config.Workers != 4 {
		t.Errorf("Workers = %d, want %d", config.Workers, 4)
	}
	if config.FileDelay != 250*time.Millisecond {
		t.Errorf("FileDelay = %v, want %v", config.FileDelay, 250*time.Millisecond)
	}
	if want := []string{"*.tmp", "**/cache/**"}; !reflect.DeepEqual(config.Exclude, want) {
		t.Errorf("Exclude = %v, want %v", config.Exclude, want)
	}
	if config.S3.ApiURL != "https://s3.example.com" {
		t.Errorf("S3.ApiURL = %s, want %s", config.S3.ApiURL, "https://s3.example.com")
	}
	if config.S3.AccessKey != "test-access-key" {
		t.Errorf("S3.AccessKey = %s, want %s", config.S3.AccessKey, "test-access-key")
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "mirror.yaml")
	content := `base_url: https://files.example.com
password: from-file
workers: 2
include:
  - "**/*.pdf"
  - "**/*.epub"
s3:
  region: eu-central-1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("ALIST_PASSWORD", "from-env")

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.BaseURL != "https://files.example.com" {
		t.Errorf("BaseURL = %s, want %s", config.BaseURL, "https://files.example.com")
	}
	if config.Password != "from-env" {
		t.Errorf("Password = %s, want env value to win", config.Password)
	}
	if config.Workers != 2 {
		t.Errorf("Workers = %d, want 2", config.Workers)
	}
	if want := []string{"**/*.pdf", "**/*.epub"}; !reflect.DeepEqual(config.Include, want) {
		t.Errorf("Include = %v, want %v", config.Include, want)
	}
	if config.S3.Region != "eu-central-1" {
		t.Errorf("S3.Region = %s, want eu-central-1", config.S3.Region)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{BaseURL: "https://pan.example.com", Workers: 1, ChunkSize: DefaultChunkSize, RetryAttempts: 3}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://pan.example.com" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, true},
		{"negative delay", func(c *Config) { c.FileDelay = -time.Second }, true},
		{"no delay", func(c *Config) { c.FileDelay = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
