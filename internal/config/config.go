package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	EmbedLLM     LLMConfig     `yaml:"embed_llm"`
	InferenceLLM LLMConfig     `yaml:"inference_llm"`
	RAG          RAGConfig     `yaml:"rag"`
	Logging      LoggingConfig `yaml:"logging"`
}

// LLMConfig describes one model endpoint. Provider selects the langchaingo
// backend used to talk to it.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

type RAGConfig struct {
	CorpusPath      string        `yaml:"corpus_path"`
	IndexPath       string        `yaml:"index_path"`
	CollectionName  string        `yaml:"collection_name"`
	TopK            int           `yaml:"top_k"`
	SourcesTopK     int           `yaml:"sources_top_k"`
	MaxTokens       int           `yaml:"max_tokens"`
	Compress        bool          `yaml:"compress"`
	EncryptionKey   string        `yaml:"encryption_key"`
	IgnoreStaleness bool          `yaml:"ignore_staleness"`
	LockRetryDelay  time.Duration `yaml:"lock_retry_delay"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		EmbedLLM: LLMConfig{
			Provider: ProviderOllama,
			BaseURL:  "http://localhost:11434",
			Model:    "all-minilm",
		},
		InferenceLLM: LLMConfig{
			Provider: ProviderOpenAI,
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4-turbo",
		},
		RAG: RAGConfig{
			CorpusPath:     "faq_data.txt",
			IndexPath:      "data/faq_index.gob",
			CollectionName: "faq",
			TopK:           5,
			SourcesTopK:    3,
			MaxTokens:      200,
			LockRetryDelay: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAQRAG_CORPUS_PATH"); v != "" {
		cfg.RAG.CorpusPath = v
	}
	if v := os.Getenv("FAQRAG_INDEX_PATH"); v != "" {
		cfg.RAG.IndexPath = v
	}
	if v := os.Getenv("FAQRAG_ENCRYPTION_KEY"); v != "" {
		cfg.RAG.EncryptionKey = v
	}
	if v := os.Getenv("FAQRAG_IGNORE_STALENESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RAG.IgnoreStaleness = b
		}
	}
	if v := os.Getenv("FAQRAG_EMBED_MODEL"); v != "" {
		cfg.EmbedLLM.Model = v
	}
	if v := os.Getenv("FAQRAG_EMBED_BASE_URL"); v != "" {
		cfg.EmbedLLM.BaseURL = v
	}
	if v := os.Getenv("FAQRAG_INFERENCE_MODEL"); v != "" {
		cfg.InferenceLLM.Model = v
	}
	if v := os.Getenv("FAQRAG_INFERENCE_BASE_URL"); v != "" {
		cfg.InferenceLLM.BaseURL = v
	}
	if v := os.Getenv("FAQRAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// openai keys are usually exported under their own name
	apiKey := os.Getenv("OPENAI_API_KEY")
	if cfg.InferenceLLM.Key == "" && cfg.InferenceLLM.Provider == ProviderOpenAI {
		cfg.InferenceLLM.Key = apiKey
	}
	if cfg.EmbedLLM.Key == "" && cfg.EmbedLLM.Provider == ProviderOpenAI {
		cfg.EmbedLLM.Key = apiKey
	}
}

func (c *Config) Validate() error {
	for name, llm := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "inference_llm": c.InferenceLLM} {
		switch strings.ToLower(llm.Provider) {
		case ProviderOllama, ProviderOpenAI:
		default:
			return fmt.Errorf("%s: unsupported provider %q", name, llm.Provider)
		}
	}
	if c.RAG.IndexPath == "" {
		return errors.New("rag.index_path is required")
	}
	if c.RAG.CollectionName == "" {
		return errors.New("rag.collection_name is required")
	}
	// chromem-go uses AES-256-GCM
	if c.RAG.EncryptionKey != "" && len(c.RAG.EncryptionKey) != 32 {
		return fmt.Errorf("rag.encryption_key must be 32 bytes, got %d", len(c.RAG.EncryptionKey))
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 5
	}
	if c.RAG.SourcesTopK <= 0 {
		c.RAG.SourcesTopK = 3
	}
	if c.RAG.MaxTokens <= 0 {
		c.RAG.MaxTokens = 200
	}
	if c.RAG.LockRetryDelay <= 0 {
		c.RAG.LockRetryDelay = 100 * time.Millisecond
	}
	return nil
}
