package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnswer builds the grounded answer prompt.
	// The template expects two %s placeholders: the context, then the question.
	PromptAnswer = "answer"

	// PromptQueryRewrite expands retrieval queries for better recall.
	// The template expects a %s placeholder for the original query.
	PromptQueryRewrite = "query_rewrite"

	// PromptSummarise creates summaries of document content.
	// The template expects %d (max length) and %s (content) placeholders.
	PromptSummarise = "summarise"

	// PromptSummaryCombine merges partial summaries into one.
	// The template expects a %s placeholder for the joined partial summaries.
	PromptSummaryCombine = "summary_combine"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service should use hardcoded default prompts.
	SetPromptStore(store PromptStore)
}
