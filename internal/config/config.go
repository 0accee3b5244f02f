// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Answer server configuration
	Host string `envconfig:"REEL_HOST" yaml:"host"`
	Port int    `envconfig:"REEL_PORT" yaml:"port"`

	// Discovery API configuration
	API APIConfig `yaml:"api"`

	// Planner configuration (scoring, relaxation thresholds)
	Planner PlannerConfig `yaml:"planner"`

	// Execution configuration (paging, retries, enrichment)
	Execution ExecutionConfig `yaml:"execution"`

	// Lookup configuration (name to id resolution)
	Lookup LookupConfig `yaml:"lookup"`

	// Retrieval configuration (semantic endpoint retrieval)
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig holds discovery API settings.
type APIConfig struct {
	BaseURL           string        `envconfig:"REEL_API_URL" yaml:"base_url"`
	Token             string        `envconfig:"REEL_API_TOKEN" yaml:"token"`
	Language          string        `envconfig:"REEL_API_LANGUAGE" yaml:"language"`
	Timeout           time.Duration `envconfig:"REEL_API_TIMEOUT" yaml:"timeout"`
	RequestsPerSecond float64       `envconfig:"REEL_API_RPS" yaml:"requests_per_second"`
	Burst             int           `envconfig:"REEL_API_BURST" yaml:"burst"`
}

// PlannerConfig holds endpoint scoring and relaxation settings.
type PlannerConfig struct {
	SemanticWeight float64 `envconfig:"REEL_SEMANTIC_WEIGHT" yaml:"semantic_weight"`
	CoverageWeight float64 `envconfig:"REEL_COVERAGE_WEIGHT" yaml:"coverage_weight"`
	PriorWeight    float64 `envconfig:"REEL_PRIOR_WEIGHT" yaml:"prior_weight"`
	TieMargin      float64 `envconfig:"REEL_TIE_MARGIN" yaml:"tie_margin"`
	MinCoverage    float64 `envconfig:"REEL_MIN_COVERAGE" yaml:"min_coverage"`
	MinResults     int     `envconfig:"REEL_MIN_RESULTS" yaml:"min_results"`
	MinResultsList int     `envconfig:"REEL_MIN_RESULTS_LIST" yaml:"min_results_list"`
	MinVoteCount   int     `envconfig:"REEL_MIN_VOTE_COUNT" yaml:"min_vote_count"`
	MaxEntries     int     `envconfig:"REEL_MAX_ENTRIES" yaml:"max_entries"`
}

// ExecutionConfig holds call dispatch and enrichment settings.
type ExecutionConfig struct {
	MaxPages          int           `envconfig:"REEL_MAX_PAGES" yaml:"max_pages"`
	MaxRetries        int           `envconfig:"REEL_MAX_RETRIES" yaml:"max_retries"`
	InitialBackoff    time.Duration `envconfig:"REEL_INITIAL_BACKOFF" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `envconfig:"REEL_MAX_BACKOFF" yaml:"max_backoff"`
	EnrichSample      int           `envconfig:"REEL_ENRICH_SAMPLE" yaml:"enrich_sample"`
	EnrichConcurrency int           `envconfig:"REEL_ENRICH_CONCURRENCY" yaml:"enrich_concurrency"`
}

// LookupConfig holds name to id resolution settings.
type LookupConfig struct {
	CacheType      string        `envconfig:"REEL_LOOKUP_CACHE" yaml:"cache_type"`
	CacheSize      int           `envconfig:"REEL_LOOKUP_CACHE_SIZE" yaml:"cache_size"`
	CacheTTL       time.Duration `envconfig:"REEL_LOOKUP_CACHE_TTL" yaml:"cache_ttl"` // 0 = no expiry
	RedisURL       string        `envconfig:"REEL_REDIS_URL" yaml:"redis_url"`
	OverridesFile  string        `envconfig:"REEL_LOOKUP_OVERRIDES" yaml:"overrides_file"`
	WatchOverrides bool          `envconfig:"REEL_LOOKUP_WATCH" yaml:"watch_overrides"` // reload OverridesFile on change while serving
	Concurrency    int           `envconfig:"REEL_LOOKUP_CONCURRENCY" yaml:"concurrency"`
}

// RetrievalConfig holds semantic endpoint retrieval settings.
type RetrievalConfig struct {
	Type          string `envconfig:"REEL_RETRIEVAL_TYPE" yaml:"type"`
	QdrantHost    string `envconfig:"QDRANT_HOST" yaml:"qdrant_host"`
	QdrantPort    int    `envconfig:"QDRANT_PORT" yaml:"qdrant_port"` // gRPC
	QdrantAPIKey  string `envconfig:"QDRANT_API_KEY" yaml:"qdrant_api_key"`
	Collection    string `envconfig:"REEL_QDRANT_COLLECTION" yaml:"collection"`
	EmbedderURL   string `envconfig:"REEL_EMBEDDER_URL" yaml:"embedder_url"`
	EmbedderModel string `envconfig:"REEL_EMBEDDER_MODEL" yaml:"embedder_model"`
	EmbedDim      int    `envconfig:"REEL_EMBED_DIM" yaml:"embed_dim"`
	TopK          int    `envconfig:"REEL_RETRIEVAL_TOP_K" yaml:"top_k"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type          string `envconfig:"REEL_BUS_TYPE" yaml:"type"`
	KafkaBrokers  string `envconfig:"REEL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaClientID string `envconfig:"REEL_KAFKA_CLIENT_ID" yaml:"kafka_client_id"`
	KafkaGroupID  string `envconfig:"REEL_KAFKA_GROUP_ID" yaml:"kafka_group_id"`

	// JournalPath, when set, appends every published event to a JSON lines file.
	JournalPath string `envconfig:"REEL_BUS_JOURNAL" yaml:"journal_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"REEL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"REEL_LOG_FORMAT" yaml:"format"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"REEL_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"REEL_METRICS_PATH" yaml:"metrics_path"`
	TracingEnabled bool   `envconfig:"REEL_TRACING_ENABLED" yaml:"tracing_enabled"`
	QueryLogSize   int    `envconfig:"REEL_QUERY_LOG_SIZE" yaml:"query_log_size"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Default returns the default configuration without reading files or env.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.API = APIConfig{
		BaseURL:           "https://api.themoviedb.org/3",
		Language:          "en-US",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 40,
		Burst:             20,
	}

	cfg.Planner = PlannerConfig{
		SemanticWeight: 0.5,
		CoverageWeight: 0.35,
		PriorWeight:    0.15,
		TieMargin:      0.15,
		MinCoverage:    0.5,
		MinResults:     1,
		MinResultsList: 3,
		MinVoteCount:   200,
		MaxEntries:     20,
	}

	cfg.Execution = ExecutionConfig{
		MaxPages:          3,
		MaxRetries:        3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		EnrichSample:      40,
		EnrichConcurrency: 8,
	}

	cfg.Lookup = LookupConfig{
		CacheType:   "memory",
		CacheSize:   10000,
		CacheTTL:    24 * time.Hour,
		RedisURL:       "redis://localhost:6379",
		WatchOverrides: true,
		Concurrency:    8,
	}

	cfg.Retrieval = RetrievalConfig{
		Type:          "catalog",
		QdrantHost:    "localhost",
		QdrantPort:    6334,
		Collection:    "endpoints",
		EmbedderModel: "text-embedding-3-small",
		EmbedDim:      768,
		TopK:          8,
	}

	cfg.Bus = BusConfig{
		Type:          "memory",
		KafkaClientID: "reelquery",
		KafkaGroupID:  "reelquery",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
		TracingEnabled: false,
		QueryLogSize:   1000,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// API validation
	if c.API.BaseURL == "" {
		errs = append(errs, "api base_url is required")
	}
	if c.API.RequestsPerSecond <= 0 {
		errs = append(errs, "requests_per_second must be positive")
	}
	if c.API.Burst < 1 {
		errs = append(errs, "burst must be positive")
	}

	// Planner validation
	for name, w := range map[string]float64{
		"semantic_weight": c.Planner.SemanticWeight,
		"coverage_weight": c.Planner.CoverageWeight,
		"prior_weight":    c.Planner.PriorWeight,
		"min_coverage":    c.Planner.MinCoverage,
		"tie_margin":      c.Planner.TieMargin,
	} {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}
	if c.Planner.MinResults < 1 || c.Planner.MinResultsList < 1 {
		errs = append(errs, "min_results and min_results_list must be positive")
	}
	if c.Planner.MaxEntries < 1 {
		errs = append(errs, "max_entries must be positive")
	}

	// Execution validation
	if c.Execution.MaxPages < 1 {
		errs = append(errs, "max_pages must be positive")
	}
	if c.Execution.MaxRetries < 0 {
		errs = append(errs, "max_retries must not be negative")
	}
	if c.Execution.EnrichConcurrency < 1 || c.Execution.EnrichConcurrency > 10 {
		errs = append(errs, "enrich_concurrency must be between 1 and 10")
	}
	if c.Execution.EnrichSample < 1 {
		errs = append(errs, "enrich_sample must be positive")
	}

	// Lookup validation
	validCacheTypes := map[string]bool{"memory": true, "redis": true}
	if !validCacheTypes[c.Lookup.CacheType] {
		errs = append(errs, fmt.Sprintf("invalid lookup cache type: %s (must be memory or redis)", c.Lookup.CacheType))
	}
	if c.Lookup.Concurrency < 1 || c.Lookup.Concurrency > 10 {
		errs = append(errs, "lookup concurrency must be between 1 and 10")
	}

	// Retrieval validation
	validRetrieval := map[string]bool{"catalog": true, "qdrant": true}
	if !validRetrieval[c.Retrieval.Type] {
		errs = append(errs, fmt.Sprintf("invalid retrieval type: %s (must be catalog or qdrant)", c.Retrieval.Type))
	}
	if c.Retrieval.Type == "qdrant" && c.Retrieval.EmbedderURL == "" {
		errs = append(errs, "embedder_url is required for qdrant retrieval")
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, "retrieval top_k must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers is required for kafka bus")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		// map iteration above is unordered
		sort.Strings(errs)
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
