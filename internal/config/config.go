// Package config provides configuration loading and structs for the wakeru server.
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
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Extract   ExtractConfig   `yaml:"extract"`
	Tagger    TaggerConfig    `yaml:"tagger"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

// LogConfig holds the optional rotating log file. An empty File logs to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// StorageConfig holds the session database location. The session is wiped at startup
// regardless; a file path only helps inspecting a running session.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ExtractConfig holds text extraction settings.
type ExtractConfig struct {
	Extensions []string `yaml:"extensions"`
	Workers    int      `yaml:"workers"`
}

// ModelConfig describes one entry of a model fallback chain.
type ModelConfig struct {
	ID            string   `yaml:"id"`
	Provider      string   `yaml:"provider"`
	ModelPath     string   `yaml:"model_path"`
	TokenizerPath string   `yaml:"tokenizer_path"`
	BaseURL       string   `yaml:"base_url"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	Model         string   `yaml:"model"`
	Labels        []string `yaml:"labels"`
	MaxSeqLen     int      `yaml:"max_seq_len"`
	Dimensions    int      `yaml:"dimensions"`
	TermsPath     string   `yaml:"terms_path"`
	SegmentChars  int      `yaml:"segment_chars"`
	ChunkWords    int      `yaml:"chunk_words"`
	ChunkOverlap  int      `yaml:"chunk_overlap"`
}

// Name returns the model id, or the provider when no id is set.
func (m ModelConfig) Name() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Provider
}

// TaggerConfig holds the ordered entity tagger chain.
type TaggerConfig struct {
	MaxChars int           `yaml:"max_chars"`
	Models   []ModelConfig `yaml:"models"`
}

// EmbeddingConfig holds the ordered embedder chain.
type EmbeddingConfig struct {
	CacheSize int           `yaml:"cache_size"`
	Models    []ModelConfig `yaml:"models"`
}

// ClusterConfig holds k-means settings. Seed is a pointer so an explicit 0 is kept.
type ClusterConfig struct {
	MaxClusters   int    `yaml:"max_clusters"`
	Seed          *int64 `yaml:"seed"`
	MaxIterations int    `yaml:"max_iterations"`
}

// SeedOrDefault returns the k-means seed; DefaultClusterSeed when unset.
func (c *ClusterConfig) SeedOrDefault() int64 {
	if c.Seed != nil {
		return *c.Seed
	}
	return DefaultClusterSeed
}

// InboxConfig holds directories whose files are added to the session as they appear.
type InboxConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *InboxConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
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
	cfg.Log.File = expandPath(cfg.Log.File, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	expandModels(cfg.Tagger.Models, configDir)
	expandModels(cfg.Embedding.Models, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandModels(models []ModelConfig, configDir string) {
	for i := range models {
		models[i].ModelPath = expandPath(models[i].ModelPath, configDir)
		models[i].TokenizerPath = expandPath(models[i].TokenizerPath, configDir)
		models[i].TermsPath = expandPath(models[i].TermsPath, configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths and ":memory:" are kept.
func expandPath(path string, configDir string) string {
	if path == "" || path == MemoryDatabase || filepath.IsAbs(path) {
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
