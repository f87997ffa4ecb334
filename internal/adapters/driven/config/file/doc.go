// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data under the markhor config directory.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: User-editable prompt templates for grounded answers
package file
