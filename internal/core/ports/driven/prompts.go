package driven

// Prompt names used by the answer service.
const (
	// PromptAnswerSystem is the system message for grounded answers.
	PromptAnswerSystem = "answer_system"

	// PromptAnswerContext wraps retrieved passages and the question.
	// Placeholders: %s passages, %s question.
	PromptAnswerContext = "answer_context"

	// PromptQueryRewrite asks a completion model to rephrase a question
	// as a retrieval query. Placeholder: %s question.
	PromptQueryRewrite = "query_rewrite"
)

// PromptStore loads prompt templates by name.
// Implementations fall back to built-in defaults for known names.
type PromptStore interface {
	// Load returns the template for name.
	Load(name string) (string, error)

	// Reload drops cached templates so the next Load reads fresh content.
	Reload()
}
