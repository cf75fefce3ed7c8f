// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
//   - IndexService: normalise, chunk, embed and store documents
//   - RetrievalService: nearest-neighbour search followed by MMR selection
//   - ConversationService: per-thread question answering over retrieved context
//   - SettingsService: configuration keys mapped onto domain.AppSettings
//
// Services are pure Go with no CGO or external dependencies.
package services
