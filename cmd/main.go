package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/config"
	"faq-rag/internal/embedding"
	"faq-rag/internal/helper"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/parser"
	"faq-rag/internal/rag"
)

const (
	configFilePath = "./configs/config.yaml"
)

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	query := flag.String("query", "", "Question to be answered")
	sources := flag.Int("k", 0, "Number of sources to show (defaults to rag.sources_top_k)")
	reindex := flag.Bool("reindex", false, "Rebuild the persisted index even if it is current")
	check := flag.Bool("check", false, "Report whether the index needs rebuilding and exit")
	dryRun := flag.Bool("dry-run", false, "Print the parsed FAQ entries and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(&cfg.Logging)
	log.Debug().Str("corpus", cfg.RAG.CorpusPath).Str("index", cfg.RAG.IndexPath).Msg("Loaded config")

	ctx := context.Background()

	switch {
	case *dryRun:
		printEntries(cfg)
	case *check:
		checkIndex(cfg)
	default:
		if *query == "" && !*reindex {
			log.Fatal().Msg("Please provide a question using the -query flag, or -reindex, -check or -dry-run")
		}
		answerQuery(ctx, cfg, *query, *sources, *reindex)
	}
}

func setupLogger(cfg *config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

func printEntries(cfg *config.Config) {
	_, chunks, err := parser.LoadChunks(cfg.RAG.CorpusPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading corpus")
	}
	log.Info().Msgf("Parsed %d FAQ entries", len(chunks))
	helper.PrettyPrint(parser.ParseEntries(chunks))
}

func checkIndex(cfg *config.Config) {
	stale, err := chromemdb.NeedsReindexing(cfg.RAG.CorpusPath, cfg.RAG.IndexPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error checking index")
	}
	fmt.Printf("needs reindexing: %t\n", stale)
}

func answerQuery(ctx context.Context, cfg *config.Config, query string, sourcesTopK int, reindex bool) {
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	initialize := rag.Initialize
	if reindex {
		initialize = rag.Reindex
	}
	kb, err := initialize(ctx, &cfg.RAG, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing knowledge base")
	}
	if query == "" {
		return
	}

	generator, err := llmservice.New(&cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing llm")
	}

	r := rag.NewRAG(kb, embedder, generator, &cfg.RAG)
	response, err := r.Query(ctx, query, sourcesTopK)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, s := range response.Sources {
		header := fmt.Sprintf("[%.4f]", s.Score)
		if s.Question != "" {
			header += " " + s.Question
		}
		fmt.Printf("%s\n%s\n\n", header, s.Text)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
}
