package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/embedding"
	"faq-rag/internal/helper"
	"faq-rag/internal/models"
	"faq-rag/internal/parser"
)

type IndexManagerConfig struct {
	// CorpusPath is compared against the index file for staleness. Empty
	// disables the comparison.
	CorpusPath     string
	CollectionName string
	// IgnoreStaleness loads any existing index as is, without comparing
	// modification times or row counts.
	IgnoreStaleness bool
	LockRetryDelay  time.Duration
}

// IndexManager returns a usable index for a chunk list, loading the
// persisted one when it is current and building it otherwise. Concurrent
// builds are collapsed within the process and serialized across processes
// through a lock file next to the index.
type IndexManager struct {
	embedder embedding.Embedder
	store    *chromemdb.Store
	cfg      IndexManagerConfig
	group    singleflight.Group
}

func NewIndexManager(embedder embedding.Embedder, store *chromemdb.Store, cfg IndexManagerConfig) *IndexManager {
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = 100 * time.Millisecond
	}
	return &IndexManager{embedder: embedder, store: store, cfg: cfg}
}

func (m *IndexManager) GetOrBuildIndex(ctx context.Context, chunks []string) (*chromemdb.Index, error) {
	return m.do(ctx, m.store.Path(), func() (*chromemdb.Index, error) {
		return m.getOrBuild(ctx, chunks)
	})
}

// Rebuild embeds chunks and replaces the persisted index regardless of its
// state, holding the same lock as GetOrBuildIndex.
func (m *IndexManager) Rebuild(ctx context.Context, chunks []string) (*chromemdb.Index, error) {
	return m.do(ctx, m.store.Path()+"#rebuild", func() (*chromemdb.Index, error) {
		log.Info().Str("index", m.store.Path()).Msg("Rebuilding index on request")
		return m.build(ctx, chunks)
	})
}

func (m *IndexManager) do(ctx context.Context, key string, fn func() (*chromemdb.Index, error)) (*chromemdb.Index, error) {
	v, err, shared := m.group.Do(key, func() (any, error) {
		unlock, err := m.lock(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
		return fn()
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("path", m.store.Path()).Msg("Shared index result with concurrent caller")
	}
	return v.(*chromemdb.Index), nil
}

// lock takes the cross-process lock file next to the index.
func (m *IndexManager) lock(ctx context.Context) (func(), error) {
	if err := helper.CreateFolder(filepath.Dir(m.store.Path())); err != nil {
		return nil, err
	}

	lock := flock.New(m.store.Path() + ".lock")
	locked, err := lock.TryLockContext(ctx, m.cfg.LockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire index lock %s: not acquired", lock.Path())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", lock.Path()).Msg("Failed to release index lock")
		}
	}, nil
}

func (m *IndexManager) getOrBuild(ctx context.Context, chunks []string) (*chromemdb.Index, error) {
	if !m.cfg.IgnoreStaleness && m.cfg.CorpusPath != "" {
		stale, err := chromemdb.NeedsReindexing(m.cfg.CorpusPath, m.store.Path())
		if err != nil {
			return nil, err
		}
		if stale {
			log.Info().Str("corpus", m.cfg.CorpusPath).Str("index", m.store.Path()).Msg("Index missing or older than corpus, rebuilding")
			return m.build(ctx, chunks)
		}
	}

	idx, found, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return m.build(ctx, chunks)
	}
	if !m.cfg.IgnoreStaleness && idx.Count() != len(chunks) {
		log.Warn().Int("rows", idx.Count()).Int("chunks", len(chunks)).Msg("Index rows do not match chunks, rebuilding")
		return m.build(ctx, chunks)
	}
	return idx, nil
}

// build embeds every chunk and persists the result. The dimension is taken
// from the embedding of the first chunk.
func (m *IndexManager) build(ctx context.Context, chunks []string) (*chromemdb.Index, error) {
	if len(chunks) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	start := time.Now()

	dim, err := embedding.Dimension(ctx, m.embedder, chunks[0])
	if err != nil {
		return nil, err
	}
	idx, err := chromemdb.NewIndex(m.cfg.CollectionName, dim)
	if err != nil {
		return nil, err
	}

	var metadatas []map[string]string
	for _, entry := range parser.ParseEntries(chunks) {
		metadatas = append(metadatas, parser.CreateMetadata(entry))
	}

	vectors, err := embedding.GenerateEmbeddings(ctx, m.embedder, chunks)
	if err != nil {
		return nil, err
	}

	if err := idx.Add(ctx, vectors, metadatas); err != nil {
		return nil, err
	}

	if err := m.store.Save(idx); err != nil {
		return nil, err
	}

	log.Info().Int("chunks", len(chunks)).Int("dimension", dim).Dur("took", time.Since(start)).Msg("Built index")
	return idx, nil
}
