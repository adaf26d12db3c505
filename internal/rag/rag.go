package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/config"
	"faq-rag/internal/embedding"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/models"
	"faq-rag/internal/parser"
)

// KnowledgeBase is the state prepared once at startup and read by every
// query afterwards.
type KnowledgeBase struct {
	CorpusPath string
	Corpus     string
	Chunks     []string
	Index      *chromemdb.Index
}

// Initialize loads and chunks the corpus, then loads or builds its index.
func Initialize(ctx context.Context, cfg *config.RAGConfig, embedder embedding.Embedder) (*KnowledgeBase, error) {
	return initialize(ctx, cfg, embedder, false)
}

// Reindex is Initialize with an unconditional rebuild of the index.
func Reindex(ctx context.Context, cfg *config.RAGConfig, embedder embedding.Embedder) (*KnowledgeBase, error) {
	return initialize(ctx, cfg, embedder, true)
}

func initialize(ctx context.Context, cfg *config.RAGConfig, embedder embedding.Embedder, rebuild bool) (*KnowledgeBase, error) {
	corpus, chunks, err := parser.LoadChunks(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}

	store := chromemdb.NewStore(chromemdb.StoreConfig{
		Path:           cfg.IndexPath,
		CollectionName: cfg.CollectionName,
		Compress:       cfg.Compress,
		EncryptionKey:  cfg.EncryptionKey,
	})
	manager := NewIndexManager(embedder, store, IndexManagerConfig{
		CorpusPath:      cfg.CorpusPath,
		CollectionName:  cfg.CollectionName,
		IgnoreStaleness: cfg.IgnoreStaleness,
		LockRetryDelay:  cfg.LockRetryDelay,
	})

	getIndex := manager.GetOrBuildIndex
	if rebuild {
		getIndex = manager.Rebuild
	}
	idx, err := getIndex(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("prepare index: %w", err)
	}

	return &KnowledgeBase{
		CorpusPath: cfg.CorpusPath,
		Corpus:     corpus,
		Chunks:     chunks,
		Index:      idx,
	}, nil
}

type AnswerOptions struct {
	TopK      int
	MaxTokens int
}

func DefaultAnswerOptions() AnswerOptions {
	return AnswerOptions{TopK: models.DefaultTopK, MaxTokens: models.DefaultMaxTokens}
}

// Answer retrieves the entries closest to query and asks the generator to
// answer from them. It never fails: when nothing matches the no-match text is
// returned without calling the generator, and errors are turned into a
// message that includes them. A panicking generator is reported the same way.
func Answer(ctx context.Context, embedder embedding.Embedder, generator llmservice.Generator, index VectorIndex, chunks []string, query string, opts AnswerOptions) (answer string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("query", query).Msg("Answer panicked")
			answer = fmt.Sprintf(models.GenerationFailureTemplate, fmt.Errorf("panic: %v", r))
		}
	}()

	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = models.DefaultMaxTokens
	}

	results, err := Search(ctx, embedder, index, chunks, query, opts.TopK)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Retrieval failed")
		return fmt.Sprintf(models.GenerationFailureTemplate, err)
	}
	if models.IsNoMatch(results) {
		return models.NoMatchText
	}

	prompt := BuildPrompt(BuildContext(results), query)
	log.Debug().Int("sources", len(results)).Str("query", query).Msg("Generating answer")

	answer, err = generator.Generate(ctx, models.SystemPrompt, prompt, opts.MaxTokens)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("Generation failed")
		return fmt.Sprintf(models.GenerationFailureTemplate, err)
	}
	return answer
}

// BuildContext renders one line per result with its score to four decimals.
func BuildContext(results []models.RetrievalResult) string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf(models.ContextLineTemplate, r.Text, r.Score))
	}
	return strings.Join(lines, "\n")
}

func BuildPrompt(faqContext, query string) string {
	return fmt.Sprintf(models.AnswerPromptTemplate, faqContext, query)
}

// RAG binds a knowledge base to the capabilities used to query it.
type RAG struct {
	kb          *KnowledgeBase
	embedder    embedding.Embedder
	generator   llmservice.Generator
	opts        AnswerOptions
	sourcesTopK int
}

func NewRAG(kb *KnowledgeBase, embedder embedding.Embedder, generator llmservice.Generator, cfg *config.RAGConfig) *RAG {
	r := &RAG{
		kb:          kb,
		embedder:    embedder,
		generator:   generator,
		opts:        DefaultAnswerOptions(),
		sourcesTopK: 3,
	}
	if cfg != nil {
		if cfg.TopK > 0 {
			r.opts.TopK = cfg.TopK
		}
		if cfg.MaxTokens > 0 {
			r.opts.MaxTokens = cfg.MaxTokens
		}
		if cfg.SourcesTopK > 0 {
			r.sourcesTopK = cfg.SourcesTopK
		}
	}
	return r
}

func (r *RAG) Answer(ctx context.Context, query string) string {
	return Answer(ctx, r.embedder, r.generator, r.kb.Index, r.kb.Chunks, query, r.opts)
}

// Sources returns the k best matching entries for display next to an answer,
// each with the question stored for its row in the index.
func (r *RAG) Sources(ctx context.Context, query string, k int) ([]models.RetrievalResult, error) {
	if k <= 0 {
		k = r.sourcesTopK
	}
	hits, err := searchHits(ctx, r.embedder, r.kb.Index, r.kb.Chunks, query, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []models.RetrievalResult{models.NoMatchResult}, nil
	}

	results := make([]models.RetrievalResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
		md, err := r.kb.Index.Metadata(ctx, h.row)
		if err != nil {
			log.Warn().Err(err).Int("row", h.row).Msg("Missing metadata for source")
			continue
		}
		results[i].Question = md[parser.MetadataQuestion]
	}
	return results, nil
}

// Query answers query and collects its sources.
func (r *RAG) Query(ctx context.Context, query string, sourcesTopK int) (*models.PromptResponse, error) {
	sources, err := r.Sources(ctx, query, sourcesTopK)
	if err != nil {
		return nil, err
	}
	return &models.PromptResponse{
		Query:   query,
		Sources: sources,
		Content: r.Answer(ctx, query),
	}, nil
}
