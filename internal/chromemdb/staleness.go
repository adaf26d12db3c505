package chromemdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"faq-rag/internal/models"
)

// NeedsReindexing reports whether the index at indexPath must be rebuilt
// from the corpus at corpusPath: when no index exists, or when the corpus
// was modified strictly after the index was written. Only modification
// times are compared, not contents.
func NeedsReindexing(corpusPath, indexPath string) (bool, error) {
	indexInfo, err := os.Stat(indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("stat index %s: %w", indexPath, err)
	}

	corpusInfo, err := os.Stat(corpusPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", models.ErrCorpusNotFound, corpusPath)
		}
		return false, fmt.Errorf("stat corpus %s: %w", corpusPath, err)
	}

	return corpusInfo.ModTime().After(indexInfo.ModTime()), nil
}
