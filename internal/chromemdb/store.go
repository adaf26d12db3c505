package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/helper"
)

type StoreConfig struct {
	Path           string
	CollectionName string
	Compress       bool
	// EncryptionKey enables AES-GCM encryption of the file, must be 32 bytes
	EncryptionKey string
}

// Store persists one Index collection to a single file.
type Store struct {
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Path() string {
	return s.cfg.Path
}

// Exists reports whether an index file is present.
func (s *Store) Exists() (bool, error) {
	fi, err := os.Stat(s.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat index %s: %w", s.cfg.Path, err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("index path is a directory: %s", s.cfg.Path)
	}
	return true, nil
}

// Save writes idx to a temporary file next to the target and renames it into
// place, so readers never observe a partially written index.
func (s *Store) Save(idx *Index) error {
	if s.cfg.Path == "" {
		return fmt.Errorf("index path is required")
	}
	if err := helper.CreateFolder(filepath.Dir(s.cfg.Path)); err != nil {
		return err
	}

	suffix, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	tmpPath := fmt.Sprintf("%s.%s.tmp", s.cfg.Path, suffix)

	log.Debug().Str("collection", idx.Name()).Str("path", s.cfg.Path).Bool("compress", s.cfg.Compress).Msg("Exporting index")

	if err := idx.db.ExportToFile(tmpPath, s.cfg.Compress, s.cfg.EncryptionKey, idx.Name()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export index: %w", err)
	}
	if err := os.Rename(tmpPath, s.cfg.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	log.Info().Str("path", s.cfg.Path).Int("rows", idx.Count()).Msg("Saved index")
	return nil
}

// Load reads the index file. A missing file is reported through the boolean,
// not as an error.
func (s *Store) Load(ctx context.Context) (*Index, bool, error) {
	ok, err := s.Exists()
	if err != nil || !ok {
		return nil, false, err
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(s.cfg.Path, s.cfg.EncryptionKey, s.cfg.CollectionName); err != nil {
		return nil, false, fmt.Errorf("failed to import index: %w", err)
	}
	idx, err := openIndex(ctx, db, s.cfg.CollectionName)
	if err != nil {
		return nil, false, err
	}

	log.Info().Str("path", s.cfg.Path).Int("rows", idx.Count()).Int("dimension", idx.Dimension()).Msg("Loaded index")
	return idx, true, nil
}
