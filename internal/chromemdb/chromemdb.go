package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

// InvalidID marks a search slot with no neighbor behind it.
const InvalidID = -1

var (
	ErrDimensionMismatch = errors.New("vector dimension does not match index")
	ErrCollectionMissing = errors.New("collection not found in index file")
	ErrInvalidDimension  = errors.New("index dimension must be positive")
	ErrInvalidK          = errors.New("k must be positive")
)

// Index is an append-only set of vectors held in a chromem-go collection.
// Row i is stored under document id "i", so rows stay aligned with the
// chunk slice they were built from.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
}

// vectors are always supplied by the caller, the collection never embeds
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("index stores precomputed vectors only")
}

// NewIndex creates an empty in-memory index for vectors of the given dimension.
func NewIndex(collectionName string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, map[string]string{"dimension": strconv.Itoa(dimension)}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &Index{db: db, collection: c, dimension: dimension}, nil
}

func openIndex(ctx context.Context, db *chromem.DB, collectionName string) (*Index, error) {
	c := db.GetCollection(collectionName, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionMissing, collectionName)
	}

	idx := &Index{db: db, collection: c}
	if c.Count() == 0 {
		return idx, nil
	}
	first, err := c.GetByID(ctx, strconv.Itoa(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read first row: %w", err)
	}
	idx.dimension = len(first.Embedding)
	return idx, nil
}

func (i *Index) Name() string {
	return i.collection.Name
}

func (i *Index) Dimension() int {
	return i.dimension
}

func (i *Index) Count() int {
	return i.collection.Count()
}

// Metadata returns the metadata stored with row.
func (i *Index) Metadata(ctx context.Context, row int) (map[string]string, error) {
	doc, err := i.collection.GetByID(ctx, strconv.Itoa(row))
	if err != nil {
		return nil, fmt.Errorf("failed to read row %d: %w", row, err)
	}
	return doc.Metadata, nil
}

// Add appends vectors as new rows starting at Count(). metadatas may be nil;
// otherwise it must have one entry per vector.
func (i *Index) Add(ctx context.Context, vectors [][]float32, metadatas []map[string]string) error {
	if len(vectors) == 0 {
		return nil
	}
	if metadatas != nil && len(metadatas) != len(vectors) {
		return fmt.Errorf("got %d metadata entries for %d vectors", len(metadatas), len(vectors))
	}

	// an index loaded from an empty file takes the dimension of its first rows
	if i.dimension == 0 {
		i.dimension = len(vectors[0])
	}

	start := i.Count()
	docs := make([]chromem.Document, len(vectors))
	for row, v := range vectors {
		if len(v) != i.dimension {
			return fmt.Errorf("%w: row %d has %d, index has %d", ErrDimensionMismatch, start+row, len(v), i.dimension)
		}
		docs[row] = chromem.Document{
			ID:        strconv.Itoa(start + row),
			Embedding: v,
		}
		if metadatas != nil {
			docs[row].Metadata = metadatas[row]
		}
	}

	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("collection", i.collection.Name).Int("added", len(docs)).Int("count", i.Count()).Msg("Added vectors")
	return nil
}

// Search returns the k nearest rows to query by cosine similarity, best
// first. Both slices always have length k; slots without a neighbor hold
// InvalidID and a zero score.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]float32, []int, error) {
	if k <= 0 {
		return nil, nil, ErrInvalidK
	}
	if i.dimension != 0 && len(query) != i.dimension {
		return nil, nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), i.dimension)
	}

	scores := make([]float32, k)
	ids := make([]int, k)
	for j := range ids {
		ids[j] = InvalidID
	}

	n := min(k, i.Count())
	if n == 0 {
		return scores, ids, nil
	}

	results, err := i.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	for j, res := range results {
		id, err := strconv.Atoi(res.ID)
		if err != nil || math.IsNaN(float64(res.Similarity)) {
			continue
		}
		scores[j] = res.Similarity
		ids[j] = id
	}
	return scores, ids, nil
}
