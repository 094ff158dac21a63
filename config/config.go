package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document QA service
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Generation GenerationConfig `mapstructure:"generation"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	JWTSecret    string `mapstructure:"jwt_secret"`
	MaxDocuments int    `mapstructure:"max_documents"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.MaxDocuments <= 0 {
		return fmt.Errorf("server.max_documents must be > 0")
	}
	return nil
}

// ChunkingConfig controls how document text is split before embedding
type ChunkingConfig struct {
	MaxChunkTokens   int `mapstructure:"max_chunk_tokens"`
	OverlapTokens    int `mapstructure:"overlap_tokens"`
	BoundaryLookback int `mapstructure:"boundary_lookback"`
}

// Normalize applies defaults for unset chunking values.
func (c ChunkingConfig) Normalize() ChunkingConfig {
	if c.MaxChunkTokens <= 0 {
		c.MaxChunkTokens = 256
	}
	if c.OverlapTokens <= 0 {
		c.OverlapTokens = 32
	}
	if c.BoundaryLookback <= 0 {
		c.BoundaryLookback = 16
	}
	return c
}

func (c ChunkingConfig) Validate() error {
	if c.OverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("chunking.overlap_tokens must be smaller than chunking.max_chunk_tokens")
	}
	return nil
}

// RetrievalConfig controls candidate selection and the context budget
type RetrievalConfig struct {
	TopK                 int `mapstructure:"top_k"`
	OverfetchFactor      int `mapstructure:"overfetch_factor"`
	MaxChunksPerDocument int `mapstructure:"max_chunks_per_document"`
	MaxContextTokens     int `mapstructure:"max_context_tokens"`
}

// Normalize applies defaults for unset retrieval values.
func (r RetrievalConfig) Normalize() RetrievalConfig {
	if r.TopK <= 0 {
		r.TopK = 4
	}
	if r.OverfetchFactor <= 0 {
		r.OverfetchFactor = 3
	}
	if r.MaxChunksPerDocument <= 0 {
		r.MaxChunksPerDocument = 3
	}
	if r.MaxContextTokens <= 0 {
		r.MaxContextTokens = 1024
	}
	return r
}

func (r RetrievalConfig) Validate() error {
	if r.OverfetchFactor < 2 {
		return fmt.Errorf("retrieval.overfetch_factor must be >= 2")
	}
	return nil
}

// GenerationConfig bounds the retry loop around the completion provider
type GenerationConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// Normalize applies defaults for unset generation values.
func (g GenerationConfig) Normalize() GenerationConfig {
	if g.MaxRetries <= 0 {
		g.MaxRetries = 3
	}
	if g.InitialBackoff <= 0 {
		g.InitialBackoff = 300 * time.Millisecond
	}
	return g
}

// ProvidersConfig contains model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig contains OpenAI API settings
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	EmbedRetries    int           `mapstructure:"embed_retries"`
}

func (o OpenAIConfig) Validate() error {
	if strings.TrimSpace(o.APIKey) == "" {
		return fmt.Errorf("providers.openai.api_key required")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN renders the lib/pq connection string when URL is not set directly.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr renders the host:port pair for the redis client.
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// LoadConfig loads config from file, then overlays DOCQA_* env vars.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.max_documents", 20)
	v.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	v.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DOCQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when env vars carry the settings.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	config.Chunking = config.Chunking.Normalize()
	config.Retrieval = config.Retrieval.Normalize()
	config.Generation = config.Generation.Normalize()

	if err := config.Server.Validate(); err != nil {
		return nil, err
	}
	if err := config.Chunking.Validate(); err != nil {
		return nil, err
	}
	if err := config.Retrieval.Validate(); err != nil {
		return nil, err
	}
	if err := config.Providers.OpenAI.Validate(); err != nil {
		return nil, err
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
