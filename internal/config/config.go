package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
)

// Config holds the ragdex configuration.
type Config struct {
	HTTP      HTTPConfig        `yaml:"http"`
	Database  DatabaseConfig    `yaml:"database"`
	Index     IndexConfig       `yaml:"index"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Chunking  ChunkingConfig    `yaml:"chunking"`
	Ingest    IngestConfig      `yaml:"ingest"`
	Search    SearchConfig      `yaml:"search"`
	Scopes    map[string]string `yaml:"scopes"` // scope name -> scope id
	Auth      AuthConfig        `yaml:"auth"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error (default: determined by env)
	Encoding string `yaml:"encoding"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int `yaml:"max_upload_mb"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // postgres, sqlite, redis, valkey (default: sqlite)
	DSN              string   `yaml:"dsn"`    // postgres URL or sqlite file path
	Addrs            []string `yaml:"addrs"`  // redis/valkey
	Password         string   `yaml:"password"`
	MaxOpenConns     int      `yaml:"max_open_conns"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// IsSQL reports whether the driver goes through database/sql.
func (d DatabaseConfig) IsSQL() bool {
	return d.Driver == DriverPostgres || d.Driver == DriverSQLite
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Provider   ProviderConfig  `yaml:"provider"`
	Model      string          `yaml:"model"`
	Dimensions int             `yaml:"dimensions"`
	BatchSize  int             `yaml:"batch_size"`
	TimeoutSec int             `yaml:"timeout_sec"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Retry      RetryConfig     `yaml:"retry"`
	Cache      CacheConfig     `yaml:"cache"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// RateLimitConfig is a token bucket in front of the provider. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RetryConfig controls exponential backoff on transient provider errors.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// CacheConfig enables the Redis-backed cache for ingestion embeddings.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLHours int      `yaml:"ttl_hours"` // 0 = no expiry
}

// ChunkingConfig holds semantic chunker parameters. Sizes are in characters.
type ChunkingConfig struct {
	MinContentLength    int     `yaml:"min_content_length"`
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	MaxMergedSize       int     `yaml:"max_merged_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MinPassageLength    int     `yaml:"min_passage_length"`
	FallbackChunkSize   int     `yaml:"fallback_chunk_size"`
	FallbackOverlap     int     `yaml:"fallback_overlap"`
}

// IngestConfig holds the ingestion worker pool settings.
type IngestConfig struct {
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queue_size"`
	SpoolDir      string `yaml:"spool_dir"`
	JobTimeoutSec int    `yaml:"job_timeout_sec"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	InboxDir      string `yaml:"inbox_dir"`
	PDFToTextPath string `yaml:"pdftotext_path"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit     int      `yaml:"default_limit"`
	MaxLimit         int      `yaml:"max_limit"`
	DefaultThreshold *float64 `yaml:"default_threshold"`
}

// Threshold returns the configured default threshold.
func (s SearchConfig) Threshold() float64 {
	if s.DefaultThreshold == nil {
		return 0.5
	}
	return *s.DefaultThreshold
}

// JobTimeout returns the per-file processing deadline.
func (i IngestConfig) JobTimeout() time.Duration {
	return time.Duration(i.JobTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.applyHTTPDefaults()
	c.applyDatabaseDefaults()
	c.applyEmbeddingDefaults()
	c.applyChunkingDefaults()
	c.applyIngestDefaults()

	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 5
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 50
	}
}

func (c *Config) applyDatabaseDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = "ragdex.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "ragdex:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
}

func (c *Config) applyEmbeddingDefaults() {
	if c.Embedding.Provider.Name == "" {
		c.Embedding.Provider.Name = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 256
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.RateLimit.RPS > 0 && c.Embedding.RateLimit.Burst <= 0 {
		c.Embedding.RateLimit.Burst = 1
	}
	if c.Embedding.Retry.MaxAttempts <= 0 {
		c.Embedding.Retry.MaxAttempts = 3
	}
	if c.Embedding.Retry.BaseDelayMS <= 0 {
		c.Embedding.Retry.BaseDelayMS = 200
	}
	if c.Embedding.Retry.MaxDelayMS <= 0 {
		c.Embedding.Retry.MaxDelayMS = 5000
	}
}

func (c *Config) applyChunkingDefaults() {
	ch := &c.Chunking
	if ch.MinContentLength <= 0 {
		ch.MinContentLength = 100
	}
	if ch.ChunkSize <= 0 {
		ch.ChunkSize = 300
	}
	if ch.ChunkOverlap <= 0 {
		ch.ChunkOverlap = 50
	}
	if ch.MaxMergedSize <= 0 {
		ch.MaxMergedSize = 1000
	}
	if ch.SimilarityThreshold == 0 {
		ch.SimilarityThreshold = 0.6
	}
	if ch.MinPassageLength <= 0 {
		ch.MinPassageLength = 50
	}
	if ch.FallbackChunkSize <= 0 {
		ch.FallbackChunkSize = 1000
	}
	if ch.FallbackOverlap <= 0 {
		ch.FallbackOverlap = 200
	}
}

func (c *Config) applyIngestDefaults() {
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 64
	}
	if c.Ingest.SpoolDir == "" {
		c.Ingest.SpoolDir = filepath.Join(os.TempDir(), "ragdex-spool")
	}
	if c.Ingest.JobTimeoutSec <= 0 {
		c.Ingest.JobTimeoutSec = 600
	}
	if c.Ingest.MaxUploadMB <= 0 {
		c.Ingest.MaxUploadMB = c.HTTP.MaxUploadMB
	}
	if c.Ingest.PDFToTextPath == "" {
		c.Ingest.PDFToTextPath = "pdftotext"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if c.Embedding.Dimensions > 16000 {
		return fmt.Errorf("embedding.dimensions must be at most 16000, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.RateLimit.RPS < 0 {
		return fmt.Errorf("embedding.rate_limit.rps must not be negative")
	}
	if c.Embedding.Cache.Enabled && len(c.Embedding.Cache.Addrs) == 0 &&
		c.Database.Driver != DriverRedis && c.Database.Driver != DriverValkey {
		return fmt.Errorf("embedding.cache.addrs is required unless database.driver is redis or valkey")
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must not exceed search.max_limit")
	}
	if t := c.Search.Threshold(); t < 0 || t > 1 {
		return fmt.Errorf("search.default_threshold must be between 0 and 1, got %v", t)
	}
	for name, id := range c.Scopes {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(id) == "" {
			return fmt.Errorf("scopes entries need a non-empty name and id")
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf(
			"database.driver must be one of postgres, sqlite, redis, valkey, got %q", c.Database.Driver,
		)
	}
	return nil
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.ChunkOverlap >= ch.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be smaller than chunking.chunk_size")
	}
	if ch.FallbackOverlap >= ch.FallbackChunkSize {
		return fmt.Errorf("chunking.fallback_overlap must be smaller than chunking.fallback_chunk_size")
	}
	if ch.MaxMergedSize < ch.ChunkSize {
		return fmt.Errorf("chunking.max_merged_size must be at least chunking.chunk_size")
	}
	if ch.SimilarityThreshold < -1 || ch.SimilarityThreshold > 1 {
		return fmt.Errorf("chunking.similarity_threshold must be between -1 and 1")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
