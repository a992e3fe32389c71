// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Answer    AnswerConfig    `yaml:"answer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig holds paths for the metadata database, uploads, and persisted indexes.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	UploadPath   string `yaml:"upload_path"`
	IndexPath    string `yaml:"index_path"`
	// InboxPath, when set, is watched for dropped files which are registered
	// and ingested automatically.
	InboxPath string `yaml:"inbox_path"`
}

// UploadConfig holds upload validation and ingestion policy.
type UploadConfig struct {
	// AllowedExtensions restricts what can be uploaded (with leading dot).
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// IngestOnUpload controls whether an index build is kicked off right after
	// upload. When false, the index is built lazily on the first question.
	IngestOnUpload *bool `yaml:"ingest_on_upload"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// IngestOnUploadOrDefault returns the eager-ingestion policy; defaults to true when unset.
func (u *UploadConfig) IngestOnUploadOrDefault() bool {
	if u.IngestOnUpload != nil {
		return *u.IngestOnUpload
	}
	return true
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// RetrievalConfig holds chunking and retrieval settings.
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

// AnswerConfig holds LLM answer-generation settings. The API key is read from
// the environment variable named by APIKeyEnv, never from the config file.
type AnswerConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffBaseSec    int     `yaml:"backoff_base_sec"`
	BackoffCapSec     int     `yaml:"backoff_cap_sec"`
	RequestsPerSec    float64 `yaml:"requests_per_sec"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadPath = expandPath(cfg.Storage.UploadPath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Storage.InboxPath != "" {
		cfg.Storage.InboxPath = expandPath(cfg.Storage.InboxPath, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
