package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallnest/ragchat/rag/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HUGGINGFACE_TOKEN", "OPENAI_API_KEY", "LLM_PROVIDER", "LLM_MODEL", "EMBEDDING_MODEL",
	"LLM_BASE_URL", "LLM_MAX_TOKENS", "VECTOR_STORE", "DATABASE_URL", "VECTOR_COLLECTION",
	"VECTOR_DIMENSIONS", "REDIS_ADDR", "HISTORY_STORE", "HISTORY_PATH", "SOURCE_URL",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "TOP_K", "QUERY_ANALYSIS", "INVALID_SECTION_POLICY",
	"PORT", "CORS_ORIGINS", "LOG_LEVEL", "RAGCHAT_CONFIG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "huggingface", cfg.LLM.Provider)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", cfg.LLM.Model)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.Equal(t, "vector_store", cfg.VectorStore.Collection)
	assert.Equal(t, 384, cfg.VectorStore.Dimensions)
	assert.Equal(t, DefaultSourceURL, cfg.Ingest.SourceURL)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 4, cfg.Pipeline.TopK)
	assert.True(t, cfg.Pipeline.QueryAnalysis)
	assert.Equal(t, engine.PolicyFail, cfg.Policy())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ":8000", cfg.Addr())

	err = cfg.Validate()
	assert.True(t, errors.Is(err, ErrMissingToken))
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HUGGINGFACE_TOKEN", "hf_test")
	t.Setenv("VECTOR_STORE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("TOP_K", "6")
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("QUERY_ANALYSIS", "false")
	t.Setenv("INVALID_SECTION_POLICY", "unfiltered")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hf_test", cfg.LLM.HuggingFaceToken)
	assert.Equal(t, "redis", cfg.VectorStore.Type)
	assert.Equal(t, "cache:6379", cfg.VectorStore.RedisAddr)
	assert.Equal(t, 6, cfg.Pipeline.TopK)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.False(t, cfg.Pipeline.QueryAnalysis)
	assert.Equal(t, engine.PolicyUnfiltered, cfg.Policy())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
}

func TestYAMLFileWithEnvPriority(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ragchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: openai
  model: gpt-4o-mini
vector_store:
  type: postgres
  database_url: postgres://localhost/ragchat
  dimensions: 1536
pipeline:
  top_k: 8
server:
  cors_origins: ["https://pal.example.edu"]
`), 0o600))
	t.Setenv("RAGCHAT_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TOP_K", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "postgres", cfg.VectorStore.Type)
	assert.Equal(t, 1536, cfg.VectorStore.Dimensions)
	assert.Equal(t, "vector_store", cfg.VectorStore.Collection)
	assert.Equal(t, 2, cfg.Pipeline.TopK)
	assert.Equal(t, []string{"https://pal.example.edu"}, cfg.Server.CORSOrigins)
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.LLM.HuggingFaceToken = "hf_test"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		token  bool
	}{
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "ernie" }, false},
		{"unknown vector store", func(c *Config) { c.VectorStore.Type = "qdrant" }, false},
		{"postgres without url", func(c *Config) { c.VectorStore.Type = "postgres" }, false},
		{"postgres history without url", func(c *Config) { c.History.Type = "postgres" }, false},
		{"unknown history", func(c *Config) { c.History.Type = "file" }, false},
		{"overlap too large", func(c *Config) { c.Ingest.ChunkOverlap = 1000 }, false},
		{"zero top k", func(c *Config) { c.Pipeline.TopK = 0 }, false},
		{"bad policy", func(c *Config) { c.Pipeline.InvalidSectionPolicy = "retry" }, false},
		{"zero dimensions", func(c *Config) { c.VectorStore.Dimensions = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.token, errors.Is(err, ErrMissingToken))
		})
	}
}
