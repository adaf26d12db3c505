package models

import "errors"

var (
	ErrCorpusNotFound = errors.New("corpus file not found")
	ErrEmptyCorpus    = errors.New("corpus contains no FAQ entries")
)
