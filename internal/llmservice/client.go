package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faq-rag/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator produces text from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, userPrompt string, maxOutputTokens int) (string, error)
}

var ErrEmptyResponse = errors.New("llm returned no choices")

// LLMGenerator adapts a langchaingo model to Generator.
type LLMGenerator struct {
	model llms.Model
}

func NewGenerator(model llms.Model) *LLMGenerator {
	return &LLMGenerator{model: model}
}

// New creates a generator for the inference model described by llmConfig.
func New(llmConfig *config.LLMConfig) (*LLMGenerator, error) {
	model, err := NewModel(llmConfig)
	if err != nil {
		return nil, err
	}
	return NewGenerator(model), nil
}

// NewModel creates the langchaingo chat model for llmConfig.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating llm client")

	switch strings.ToLower(llmConfig.Provider) {
	case config.ProviderOpenAI, "":
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return llm, nil
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("init ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", llmConfig.Provider)
	}
}

func (g *LLMGenerator) Generate(ctx context.Context, systemInstruction, userPrompt string, maxOutputTokens int) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	var opts []llms.CallOption
	if maxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxOutputTokens))
	}

	res, err := GenerateContent(ctx, g.model, messages, opts...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}

// call llm
func GenerateContent(ctx context.Context, model llms.Model, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	res, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return res, nil
}
