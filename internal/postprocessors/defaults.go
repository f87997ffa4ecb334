package postprocessors

import (
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/postprocessors/chunker"
	"github.com/custodia-labs/markhor/internal/postprocessors/markdown"
	"github.com/custodia-labs/markhor/internal/postprocessors/metadata"
)

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
// The tokenizer measures chunk lengths for the chunkers.
func RegisterDefaults(r *Registry, tokenizer driven.Tokenizer) {
	r.Register("chunker", chunkerBuilder(tokenizer))
	r.Register("markdown", markdownBuilder(tokenizer))
	r.Register("metadata", buildMetadata)
}

// chunkerBuilder returns a builder creating token chunkers from generic config.
// Supported config keys:
//   - chunk_size (int): Tokens per chunk (default: 256)
//   - overlap (int): Overlapping tokens between chunks (default: 0)
func chunkerBuilder(tokenizer driven.Tokenizer) BuilderFunc {
	return func(cfg map[string]any) (driven.PostProcessor, error) {
		c, err := chunker.New(tokenizer, chunkerOptions(cfg)...)
		if err != nil {
			return nil, err
		}
		return chunker.NewProcessor(c), nil
	}
}

// markdownBuilder returns a builder creating structural markdown chunkers.
// It takes the same config keys as the token chunker, which it falls back
// to for documents that are not markdown.
func markdownBuilder(tokenizer driven.Tokenizer) BuilderFunc {
	return func(cfg map[string]any) (driven.PostProcessor, error) {
		return markdown.New(tokenizer, chunkerOptions(cfg)...)
	}
}

func chunkerOptions(cfg map[string]any) []chunker.Option {
	var opts []chunker.Option
	if _, ok := cfg["chunk_size"]; ok {
		opts = append(opts, chunker.WithChunkSize(getIntFromConfig(cfg, "chunk_size")))
	}
	if _, ok := cfg["overlap"]; ok {
		opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
	}
	return opts
}

// buildMetadata creates a metadata annotator from generic config.
// Supported config keys:
//   - keys ([]string): Document metadata keys copied onto chunks
func buildMetadata(cfg map[string]any) (driven.PostProcessor, error) {
	return metadata.New(getStringsFromConfig(cfg, "keys")...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// getStringsFromConfig extracts a string list, accepting []string or []any.
func getStringsFromConfig(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
