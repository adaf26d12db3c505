package models

// RetrievalResult is one FAQ entry returned by a search together with its
// similarity score.
type RetrievalResult struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
	// Question is filled from index metadata when results are shown as sources.
	Question string `json:"question,omitempty"`
}

// NoMatchResult is returned alone when a search yields no usable neighbor.
var NoMatchResult = RetrievalResult{Text: NoMatchText, Score: 0}

// IsNoMatch reports whether results is exactly the no-match sentinel.
func IsNoMatch(results []RetrievalResult) bool {
	return len(results) == 1 && results[0] == NoMatchResult
}

type PromptResponse struct {
	Query   string
	Sources []RetrievalResult
	Content string
}
