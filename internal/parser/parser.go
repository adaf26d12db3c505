package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"faq-rag/internal/models"

	"github.com/rs/zerolog/log"
)

// ChunkFAQ splits the corpus into FAQ entries. Entries are separated by a
// blank line and must contain both a question and an answer marker; blocks
// without them are dropped. Order is preserved and duplicates are kept.
func ChunkFAQ(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, block := range strings.Split(text, models.EntrySeparator) {
		if !isFAQEntry(block) {
			continue
		}
		chunks = append(chunks, strings.TrimSpace(block))
	}
	return chunks
}

func isFAQEntry(block string) bool {
	return strings.Contains(block, models.QuestionMarker) && strings.Contains(block, models.AnswerMarker)
}

// LoadCorpus reads the whole corpus file.
func LoadCorpus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", models.ErrCorpusNotFound, path)
		}
		return "", fmt.Errorf("read corpus %s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Loaded corpus")
	return string(data), nil
}

// LoadChunks reads the corpus at path and splits it into FAQ entries.
func LoadChunks(path string) (string, []string, error) {
	corpus, err := LoadCorpus(path)
	if err != nil {
		return "", nil, err
	}
	chunks := ChunkFAQ(corpus)
	log.Info().Str("path", path).Int("chunks", len(chunks)).Msg("Chunked corpus")
	return corpus, chunks, nil
}
