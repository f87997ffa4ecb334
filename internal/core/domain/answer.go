package domain

// AskRequest is a question to answer from retrieved passages.
type AskRequest struct {
	// Question is the user's question.
	Question string

	// K is the number of passages to retrieve (0 = DefaultAskK).
	K int

	// Scope restricts retrieval.
	Scope RetrievalScope

	// Rewrite asks a completion model to turn the question into a search query first.
	Rewrite bool

	// ChatModel selects a chat model by name; empty picks the first registered.
	ChatModel string

	// Options tune generation.
	Options GenerationOptions
}

// DefaultAskK is the passage count used when AskRequest.K is zero.
const DefaultAskK = 5

// Answer is a generated reply with the passages it was grounded on.
type Answer struct {
	// ID identifies the answer in logs and client responses.
	ID string

	// Question is the original question.
	Question string

	// Query is the text that was embedded for retrieval.
	Query string

	// Text is the model reply.
	Text string

	// Model is the fully-qualified chat model that replied.
	Model string

	// Sources are the passages given to the model, best first.
	Sources []RetrievedChunk

	// Usage is the chat token accounting.
	Usage Usage
}
