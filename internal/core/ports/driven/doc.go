// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - ContentExtractor: Extracts text and links from one document on disk
//   - LinkFetcher: Downloads linked resources with bounded timeouts
//   - EmbeddingService: Generates vector embeddings
//   - VectorIndexBuilder: Builds an exact nearest-neighbour index per snapshot
//   - LLMService: Generates answers from grounded prompts
//   - NotificationSource: Reports the most recently delivered document
//   - IngestionRunStore: Records ingestion history
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - KeywordIndexBuilder: Lexical search over the current snapshot. Without it, keyword search is disabled.
//   - PromptStore: User-editable prompt templates. Without it, embedded defaults are used.
//   - AIConfigValidator: Connectivity checks for configured providers. Without it, validation is skipped.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or extractor package
package driven
