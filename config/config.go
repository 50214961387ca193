// Package config loads ragchat settings from a .env file, an optional YAML
// file named by RAGCHAT_CONFIG, and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag/engine"
	"gopkg.in/yaml.v3"
)

// DefaultSourceURL is the blog post ingested when no source is configured.
const DefaultSourceURL = "https://lilianweng.github.io/posts/2023-06-23-agent/"

// ErrMissingToken is returned when the selected provider has no API token.
var ErrMissingToken = errors.New("missing API token")

type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	History     HistoryConfig     `yaml:"history"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Server      ServerConfig      `yaml:"server"`
	LogLevel    string            `yaml:"log_level"`
}

type LLMConfig struct {
	Provider         string `yaml:"provider"` // huggingface or openai
	Model            string `yaml:"model"`
	EmbeddingModel   string `yaml:"embedding_model"`
	BaseURL          string `yaml:"base_url"`
	MaxTokens        int    `yaml:"max_tokens"`
	HuggingFaceToken string `yaml:"-"`
	OpenAIKey        string `yaml:"-"`
}

type VectorStoreConfig struct {
	Type        string `yaml:"type"` // memory, postgres or redis
	DatabaseURL string `yaml:"database_url"`
	Collection  string `yaml:"collection"`
	Dimensions  int    `yaml:"dimensions"`
	RedisAddr   string `yaml:"redis_addr"`
}

type HistoryConfig struct {
	Type string `yaml:"type"` // none, memory, sqlite, redis or postgres
	Path string `yaml:"path"`
}

type IngestConfig struct {
	SourceURL    string `yaml:"source_url"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

type PipelineConfig struct {
	TopK                 int    `yaml:"top_k"`
	QueryAnalysis        bool   `yaml:"query_analysis"`
	InvalidSectionPolicy string `yaml:"invalid_section_policy"`
}

type ServerConfig struct {
	Port        string   `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "huggingface",
			Model:          "meta-llama/Llama-3.1-8B-Instruct",
			EmbeddingModel: "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2",
			MaxTokens:      512,
		},
		VectorStore: VectorStoreConfig{
			Type:       "memory",
			Collection: "vector_store",
			Dimensions: 384,
			RedisAddr:  "localhost:6379",
		},
		History: HistoryConfig{
			Type: "none",
			Path: "ragchat.db",
		},
		Ingest: IngestConfig{
			SourceURL:    DefaultSourceURL,
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Pipeline: PipelineConfig{
			TopK:                 4,
			QueryAnalysis:        true,
			InvalidSectionPolicy: string(engine.PolicyFail),
		},
		Server: ServerConfig{
			Port:        "8000",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		LogLevel: "info",
	}
}

// Load reads .env, the YAML file named by RAGCHAT_CONFIG and the environment,
// then validates the result.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment variables")
	}

	cfg, err := LoadFile(os.Getenv("RAGCHAT_CONFIG"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds a config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.HuggingFaceToken = getEnv("HUGGINGFACE_TOKEN", c.LLM.HuggingFaceToken)
	c.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", c.LLM.OpenAIKey)

	c.VectorStore.Type = getEnv("VECTOR_STORE", c.VectorStore.Type)
	c.VectorStore.DatabaseURL = getEnv("DATABASE_URL", c.VectorStore.DatabaseURL)
	c.VectorStore.Collection = getEnv("VECTOR_COLLECTION", c.VectorStore.Collection)
	c.VectorStore.Dimensions = getEnvAsInt("VECTOR_DIMENSIONS", c.VectorStore.Dimensions)
	c.VectorStore.RedisAddr = getEnv("REDIS_ADDR", c.VectorStore.RedisAddr)

	c.History.Type = getEnv("HISTORY_STORE", c.History.Type)
	c.History.Path = getEnv("HISTORY_PATH", c.History.Path)

	c.Ingest.SourceURL = getEnv("SOURCE_URL", c.Ingest.SourceURL)
	c.Ingest.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.Ingest.ChunkSize)
	c.Ingest.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", c.Ingest.ChunkOverlap)

	c.Pipeline.TopK = getEnvAsInt("TOP_K", c.Pipeline.TopK)
	c.Pipeline.QueryAnalysis = getEnvAsBool("QUERY_ANALYSIS", c.Pipeline.QueryAnalysis)
	c.Pipeline.InvalidSectionPolicy = getEnv("INVALID_SECTION_POLICY", c.Pipeline.InvalidSectionPolicy)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks the settings. A missing token for the selected provider
// wraps ErrMissingToken.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "huggingface":
		if c.LLM.HuggingFaceToken == "" {
			return fmt.Errorf("%w: HUGGINGFACE_TOKEN is required for provider huggingface", ErrMissingToken)
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider openai", ErrMissingToken)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}

	switch c.VectorStore.Type {
	case "memory", "redis":
	case "postgres":
		if c.VectorStore.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for vector store postgres")
		}
	default:
		return fmt.Errorf("unknown VECTOR_STORE %q", c.VectorStore.Type)
	}
	if c.VectorStore.Dimensions <= 0 {
		return fmt.Errorf("VECTOR_DIMENSIONS must be positive")
	}

	switch c.History.Type {
	case "none", "memory", "sqlite", "redis":
	case "postgres":
		if c.VectorStore.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for history store postgres")
		}
	default:
		return fmt.Errorf("unknown HISTORY_STORE %q", c.History.Type)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.Pipeline.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive")
	}
	if _, err := engine.ParsePolicy(c.Pipeline.InvalidSectionPolicy); err != nil {
		return err
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}

// Policy returns the parsed invalid section policy.
func (c *Config) Policy() engine.InvalidSectionPolicy {
	p, err := engine.ParsePolicy(c.Pipeline.InvalidSectionPolicy)
	if err != nil {
		return engine.PolicyFail
	}
	return p
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.Contains(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warn("invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Warn("invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
