// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Normaliser / NormaliserRegistry: Extract text from uploaded files
//   - PostProcessor / PostProcessorPipeline: Split documents into chunks
//   - EmbeddingService: Generates vector embeddings
//   - VectorIndex: Durable vector storage and similarity search
//   - LLMService: Answers questions from composed prompts
//   - ThreadStore: Per-thread conversation history
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - EmbeddingCache: Memoises embeddings. Without it every text is embedded.
//   - PromptStore: User-editable prompt templates. Without it defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
