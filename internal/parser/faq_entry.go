package parser

import (
	"bufio"
	"strconv"
	"strings"

	"faq-rag/internal/models"
)

const (
	MetadataQuestion = "question"
	MetadataChunkID  = "chunk_id"
)

type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	ChunkID  int    `json:"chunk_id"`
}

type entryParserState struct {
	section  string
	question []string
	answer   []string
}

// ParseEntry splits one chunk into its question and answer. Lines following
// a marker belong to that marker's section until the next marker. Text before
// the first marker is ignored.
func ParseEntry(chunk string, chunkID int) FAQEntry {
	var state entryParserState

	scanner := bufio.NewScanner(strings.NewReader(chunk))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		processEntryLine(line, &state)
	}

	return FAQEntry{
		Question: strings.Join(state.question, "\n"),
		Answer:   strings.Join(state.answer, "\n"),
		ChunkID:  chunkID,
	}
}

func processEntryLine(line string, state *entryParserState) {
	switch {
	case strings.HasPrefix(line, models.QuestionMarker):
		state.section = models.QuestionMarker
		line = strings.TrimSpace(strings.TrimPrefix(line, models.QuestionMarker))
	case strings.HasPrefix(line, models.AnswerMarker):
		state.section = models.AnswerMarker
		line = strings.TrimSpace(strings.TrimPrefix(line, models.AnswerMarker))
	}
	if line == "" {
		return
	}

	switch state.section {
	case models.QuestionMarker:
		state.question = append(state.question, line)
	case models.AnswerMarker:
		state.answer = append(state.answer, line)
	}
}

// ParseEntries parses every chunk, using its position as the chunk id.
func ParseEntries(chunks []string) []FAQEntry {
	entries := make([]FAQEntry, 0, len(chunks))
	for i, chunk := range chunks {
		entries = append(entries, ParseEntry(chunk, i))
	}
	return entries
}

// CreateMetadata returns the document metadata stored alongside a vector.
func CreateMetadata(entry FAQEntry) map[string]string {
	return map[string]string{
		MetadataQuestion: entry.Question,
		MetadataChunkID:  strconv.Itoa(entry.ChunkID),
	}
}
