package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into dense vectors. EmbedQuery embeds one text and
// EmbedDocuments embeds a batch, returning one vector per input in order.
// Any langchaingo embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embeddings.EmbedderImpl)(nil)

// New creates the embedder selected by the provider of LLMconfig.
func New(LLMconfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	switch strings.ToLower(LLMconfig.Provider) {
	case config.ProviderOpenAI:
		return NewEmbedder(LLMconfig.Key, LLMconfig.BaseURL, LLMconfig.Model)
	case config.ProviderOllama, "":
		return NewOllamaEmbedder(LLMconfig)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", LLMconfig.Provider)
	}
}

// NewEmbedder creates an embedder backed by an OpenAI compatible endpoint
func NewEmbedder(apiKey, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        baseURL,
		"embedding_model": embeddingModel,
	}).Msg("Creating openai embedder")

	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init openai embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(LLMconfig *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        LLMconfig.BaseURL,
		"embedding_model": LLMconfig.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(LLMconfig.BaseURL),
		ollama.WithModel(LLMconfig.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// GenerateEmbeddings embeds all chunks in one batch call and checks that
// the provider returned exactly one vector per chunk, all of the same length.
func GenerateEmbeddings(ctx context.Context, embedder Embedder, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	// langchaingo strips newlines from the batch in place
	vectors, err := embedder.EmbedDocuments(ctx, slices.Clone(chunks))
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("chunk %d: %w", i, ErrEmptyEmbedding)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return vectors, nil
}

// Dimension embeds sample and returns the length of its vector.
func Dimension(ctx context.Context, embedder Embedder, sample string) (int, error) {
	v, err := embedder.EmbedQuery(ctx, sample)
	if err != nil {
		return 0, fmt.Errorf("embed sample: %w", err)
	}
	if len(v) == 0 {
		return 0, ErrEmptyEmbedding
	}
	return len(v), nil
}

var ErrEmptyEmbedding = errors.New("embedder returned an empty vector")
