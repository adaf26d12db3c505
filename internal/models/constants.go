package models

const (
	QuestionMarker = "Q:"
	AnswerMarker   = "A:"
	EntrySeparator = "\n\n"

	DefaultTopK      = 5
	DefaultMaxTokens = 200

	NoMatchText = "No matching FAQ entry was found."

	SystemPrompt = "You are a knowledgeable assistant."

	ContextLineTemplate       = "- %s (score: %.4f)"
	GenerationFailureTemplate = "Sorry, an error occurred while generating the answer: %v"
)

var (
	AnswerPromptTemplate = `Answer the question using the FAQ entries below.

<context>
%s
</context>

Question: %s

Keep any numbers, dates and times exactly as they appear in the FAQ entries. Answer in natural language.
`
)
