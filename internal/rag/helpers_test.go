package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"faq-rag/internal/chromemdb"
)

var testKeywords = []string{"hours", "open", "office", "located", "password", "shipping"}

// countingEmbedder embeds text as keyword counts plus a small bias term so
// no vector is all zeros. calls counts provider round trips.
type countingEmbedder struct {
	*embeddings.EmbedderImpl
	calls atomic.Int64
}

func newCountingEmbedder(t *testing.T) *countingEmbedder {
	t.Helper()
	ce := &countingEmbedder{}
	impl, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		ce.calls.Add(1)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = keywordVector(text)
		}
		return out, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	ce.EmbedderImpl = impl
	return ce
}

func keywordVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(testKeywords)+1)
	for i, k := range testKeywords {
		v[i] = float32(strings.Count(lower, k))
	}
	v[len(testKeywords)] = 0.1
	return v
}

// recordingGenerator captures the last request and returns a fixed reply.
type recordingGenerator struct {
	mu        sync.Mutex
	calls     int
	system    string
	prompt    string
	maxTokens int
	reply     string
	err       error
}

func (g *recordingGenerator) Generate(_ context.Context, systemInstruction, userPrompt string, maxOutputTokens int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system = systemInstruction
	g.prompt = userPrompt
	g.maxTokens = maxOutputTokens
	return g.reply, g.err
}

// fakeIndex returns canned neighbors.
type fakeIndex struct {
	scores []float32
	ids    []int
	err    error
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, k int) ([]float32, []int, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	n := min(k, len(f.ids))
	return f.scores[:n], f.ids[:n], nil
}

func (f *fakeIndex) Count() int { return len(f.ids) }

const testCorpus = "Q: What are your business hours?\nA: We are open weekdays from 9:00 to 18:00.\n\n" +
	"Q: Where is the office located?\nA: The office is at 1-2-3 Chiyoda, Tokyo.\n\n" +
	"Q: How do I reset my password?\nA: Use the forgot password link on the login page."

// testChunks returns a fresh copy of the entries in testCorpus on each call.
func testChunks() []string {
	return []string{
		"Q: What are your business hours?\nA: We are open weekdays from 9:00 to 18:00.",
		"Q: Where is the office located?\nA: The office is at 1-2-3 Chiyoda, Tokyo.",
		"Q: How do I reset my password?\nA: Use the forgot password link on the login page.",
	}
}

func writeCorpus(t *testing.T, dir string, chunks []string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, "faq_data.txt")
	if err := os.WriteFile(path, []byte(strings.Join(chunks, "\n\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestManager(embedder *countingEmbedder, corpusPath, indexPath string, ignoreStaleness bool) *IndexManager {
	store := chromemdb.NewStore(chromemdb.StoreConfig{Path: indexPath, CollectionName: "faq"})
	return NewIndexManager(embedder, store, IndexManagerConfig{
		CorpusPath:      corpusPath,
		CollectionName:  "faq",
		IgnoreStaleness: ignoreStaleness,
		LockRetryDelay:  10 * time.Millisecond,
	})
}
