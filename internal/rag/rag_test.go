package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms/fake"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/config"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/models"
	"faq-rag/internal/parser"
)

func buildTestIndex(t *testing.T, embedder *countingEmbedder) *chromemdb.Index {
	t.Helper()
	dir := t.TempDir()
	corpus := writeCorpus(t, dir, testChunks(), time.Now().Add(-time.Hour))
	idx, err := newTestManager(embedder, corpus, filepath.Join(dir, "faq_index.gob"), false).
		GetOrBuildIndex(context.Background(), testChunks())
	if err != nil {
		t.Fatalf("GetOrBuildIndex: %v", err)
	}
	return idx
}

func TestAnswerNoMatchSkipsGenerator(t *testing.T) {
	gen := &recordingGenerator{reply: "should not be used"}
	idx := &fakeIndex{scores: []float32{0.5}, ids: []int{chromemdb.InvalidID}}

	got := Answer(context.Background(), newCountingEmbedder(t), gen, idx, testChunks(), "unrelated", DefaultAnswerOptions())
	if got != models.NoMatchText {
		t.Errorf("Answer() = %q, want the no-match text", got)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times", gen.calls)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	embedder := newCountingEmbedder(t)
	gen := &recordingGenerator{err: errors.New("quota exceeded")}

	got := Answer(context.Background(), embedder, gen, buildTestIndex(t, embedder), testChunks(), "business hours", DefaultAnswerOptions())
	want := fmt.Sprintf(models.GenerationFailureTemplate, "quota exceeded")
	if got != want {
		t.Errorf("Answer() = %q, want %q", got, want)
	}
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string, string, int) (string, error) {
	panic("provider client is nil")
}

func TestAnswerGeneratorPanic(t *testing.T) {
	embedder := newCountingEmbedder(t)
	idx := buildTestIndex(t, embedder)

	var got string
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Answer let a panic escape: %v", r)
			}
		}()
		got = Answer(context.Background(), embedder, panickingGenerator{}, idx, testChunks(), "business hours", DefaultAnswerOptions())
	}()

	prefix := strings.TrimSuffix(models.GenerationFailureTemplate, "%v")
	if !strings.HasPrefix(got, prefix) || !strings.Contains(got, "provider client is nil") {
		t.Errorf("Answer() = %q", got)
	}
}

func TestAnswerRetrievalFailure(t *testing.T) {
	gen := &recordingGenerator{reply: "unused"}
	got := Answer(context.Background(), newCountingEmbedder(t), gen, &fakeIndex{err: errors.New("corrupt")}, testChunks(), "q", DefaultAnswerOptions())
	if !strings.Contains(got, "corrupt") {
		t.Errorf("Answer() = %q, expected it to embed the error", got)
	}
	if gen.calls != 0 {
		t.Error("generator should not be called when retrieval fails")
	}
}

func TestAnswerBuildsPrompt(t *testing.T) {
	embedder := newCountingEmbedder(t)
	gen := &recordingGenerator{reply: "We are open weekdays from 9:00 to 18:00."}
	query := "What are your opening hours?"

	got := Answer(context.Background(), embedder, gen, buildTestIndex(t, embedder), testChunks(), query, AnswerOptions{})
	if got != gen.reply {
		t.Errorf("Answer() = %q", got)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times", gen.calls)
	}
	if gen.system != models.SystemPrompt {
		t.Errorf("system = %q", gen.system)
	}
	if gen.maxTokens != 200 {
		t.Errorf("max tokens = %d", gen.maxTokens)
	}
	if !strings.Contains(gen.prompt, query) {
		t.Error("prompt does not contain the query")
	}
	if !strings.Contains(gen.prompt, "numbers, dates and times exactly") {
		t.Error("prompt does not ask to keep numbers and dates")
	}

	// the hours entry is the best match and comes first in the context
	first := "- " + testChunks()[0] + " (score: "
	if !strings.Contains(gen.prompt, first) {
		t.Errorf("prompt missing first context line %q:\n%s", first, gen.prompt)
	}
	if strings.Index(gen.prompt, testChunks()[0]) > strings.Index(gen.prompt, testChunks()[1]) {
		t.Error("context lines are not ordered by score")
	}
}

func TestBuildContext(t *testing.T) {
	got := BuildContext([]models.RetrievalResult{
		{Text: "Q: a\nA: b", Score: 0.91234},
		{Text: "Q: c\nA: d", Score: 0.5},
	})
	want := "- Q: a\nA: b (score: 0.9123)\n- Q: c\nA: d (score: 0.5000)"
	if got != want {
		t.Errorf("BuildContext() = %q, want %q", got, want)
	}
}

func TestInitializeAndQuery(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	corpus := writeCorpus(t, dir, testChunks(), time.Now().Add(-time.Hour))
	cfg := config.Default().RAG
	cfg.CorpusPath = corpus
	cfg.IndexPath = filepath.Join(dir, "data", "faq_index.gob")

	embedder := newCountingEmbedder(t)
	kb, err := Initialize(ctx, &cfg, embedder)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(kb.Chunks) != len(testChunks()) || kb.Index.Count() != len(testChunks()) {
		t.Fatalf("chunks=%d rows=%d", len(kb.Chunks), kb.Index.Count())
	}

	r := NewRAG(kb, embedder, llmservice.NewGenerator(fake.NewFakeLLM([]string{"The office is in Chiyoda, Tokyo."})), &cfg)
	resp, err := r.Query(ctx, "Where is your office located?", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if resp.Content != "The office is in Chiyoda, Tokyo." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.Sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(resp.Sources))
	}
	if resp.Sources[0].Text != testChunks()[1] {
		t.Errorf("top source = %q", resp.Sources[0].Text)
	}
	if resp.Sources[0].Question != "Where is the office located?" {
		t.Errorf("top source question = %q", resp.Sources[0].Question)
	}
}

func TestInitializeKeepsChunksVerbatim(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	text := "Q: What are your hours?\nA: 9-5 Mon-Fri\n\nQ: Where are you located?\nA: 123 Main St"
	corpus := filepath.Join(dir, "faq_data.txt")
	if err := os.WriteFile(corpus, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default().RAG
	cfg.CorpusPath = corpus
	cfg.IndexPath = filepath.Join(dir, "data", "faq_index.gob")

	embedder := newCountingEmbedder(t)
	kb, err := Initialize(ctx, &cfg, embedder)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if embedder.calls.Load() == 0 {
		t.Fatal("expected a cold build to embed the corpus")
	}

	want := []string{
		"Q: What are your hours?\nA: 9-5 Mon-Fri",
		"Q: Where are you located?\nA: 123 Main St",
	}
	if !reflect.DeepEqual(kb.Chunks, want) {
		t.Errorf("chunks = %q, want %q", kb.Chunks, want)
	}
	if !reflect.DeepEqual(kb.Chunks, parser.ChunkFAQ(text)) {
		t.Errorf("chunks differ from ChunkFAQ of the corpus: %q", kb.Chunks)
	}

	results, err := Search(ctx, embedder, kb.Index, kb.Chunks, "hours", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != want[0] {
		t.Errorf("top result = %q, want %q", results[0].Text, want[0])
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestReindexRebuildsCurrentIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default().RAG
	cfg.CorpusPath = writeCorpus(t, dir, testChunks(), time.Now().Add(-time.Hour))
	cfg.IndexPath = filepath.Join(dir, "faq_index.gob")

	if _, err := Initialize(ctx, &cfg, newCountingEmbedder(t)); err != nil {
		t.Fatal(err)
	}

	reused := newCountingEmbedder(t)
	if _, err := Initialize(ctx, &cfg, reused); err != nil {
		t.Fatal(err)
	}
	if reused.calls.Load() != 0 {
		t.Errorf("Initialize embedded %d batches for a current index", reused.calls.Load())
	}

	rebuilt := newCountingEmbedder(t)
	kb, err := Reindex(ctx, &cfg, rebuilt)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if rebuilt.calls.Load() == 0 {
		t.Error("Reindex did not embed the corpus")
	}
	if kb.Index.Count() != len(testChunks()) {
		t.Errorf("rows = %d", kb.Index.Count())
	}
}

func TestInitializeMissingCorpus(t *testing.T) {
	cfg := config.Default().RAG
	cfg.CorpusPath = filepath.Join(t.TempDir(), "absent.txt")
	cfg.IndexPath = filepath.Join(t.TempDir(), "faq_index.gob")

	_, err := Initialize(context.Background(), &cfg, newCountingEmbedder(t))
	if !errors.Is(err, models.ErrCorpusNotFound) {
		t.Errorf("expected ErrCorpusNotFound, got %v", err)
	}
}
