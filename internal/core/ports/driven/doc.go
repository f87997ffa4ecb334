// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the pipeline to function:
//
//   - Model + one or more capability variants: Provider adapters
//   - Tokenizer: Token boundaries for chunk length measurement
//   - Workspace: Read-only document text and revisions
//   - SimilarityIndex: Concurrent vector storage and cosine query
//   - ChunkStore: Chunk persistence for resolving query hits
//   - IndexStateStore: Per-document revision and failed chunk bookkeeping
//   - EmbeddingCache: Content-hash keyed vector cache
//   - ConfigStore: Application configuration
//   - PromptStore: Templates for grounded answers
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - WorkspaceWatcher: Change notifications. Without it, callers re-index explicitly.
//   - AIConfigValidator: Connectivity checks before committing to a provider.
//   - Normaliser: Text extraction for structured formats such as HTML and DOCX.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or postprocessor package
package driven
