// Package app assembles the retrieval pipeline from persisted settings.
//
// It owns every long-lived resource a command needs: the config and prompt
// stores, the SQLite store, the model registry, the similarity index and
// the filesystem workspace.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/markhor/internal/adapters/driven/ai"
	"github.com/custodia-labs/markhor/internal/adapters/driven/cache"
	"github.com/custodia-labs/markhor/internal/adapters/driven/cache/lru"
	"github.com/custodia-labs/markhor/internal/adapters/driven/config/file"
	"github.com/custodia-labs/markhor/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/markhor/internal/adapters/driven/tokenizer/tiktoken"
	"github.com/custodia-labs/markhor/internal/adapters/driven/tokenizer/words"
	"github.com/custodia-labs/markhor/internal/connectors/filesystem"
	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/core/services"
	"github.com/custodia-labs/markhor/internal/logger"
	"github.com/custodia-labs/markhor/internal/normalisers"
	"github.com/custodia-labs/markhor/internal/postprocessors"
	"github.com/custodia-labs/markhor/internal/vectorindex"
)

// snapshotName is the key the index snapshot is stored under.
const snapshotName = "index"

// Options configures Open.
type Options struct {
	// ConfigDir holds config.toml, prompts/ and data/ (default: ~/.markhor).
	ConfigDir string

	// WorkspacePath overrides the configured workspace root.
	WorkspacePath string
}

// App is an assembled pipeline. Close releases everything it opened.
type App struct {
	Settings  *services.SettingsService
	Registry  *services.ModelRegistry
	Embedder  *services.Embedder
	Pipeline  *services.RetrievalPipeline
	Answer    *services.AnswerService
	Workspace *filesystem.Workspace
	Index     *vectorindex.Index

	configDir string
	store     *sqlite.Store
}

// DefaultConfigDir returns ~/.markhor.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".markhor"), nil
}

// OpenSettings opens only the settings layer, for commands that must work
// before any provider is configured.
func OpenSettings(opts Options) (*services.SettingsService, error) {
	dir, err := configDir(opts)
	if err != nil {
		return nil, err
	}
	store, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return services.NewSettingsService(store, ai.NewConfigValidator(nil)), nil
}

// Open assembles the pipeline.
func Open(ctx context.Context, opts Options) (*App, error) {
	dir, err := configDir(opts)
	if err != nil {
		return nil, err
	}

	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	factory := ai.NewFactory()
	settingsSvc := services.NewSettingsService(configStore, ai.NewConfigValidator(factory))
	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, err
	}
	if opts.WorkspacePath != "" {
		settings.Workspace.Path = opts.WorkspacePath
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a := &App{Settings: settingsSvc, configDir: dir}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if a.Registry, err = factory.Registry(ctx, *settings); err != nil {
		return nil, err
	}
	if a.store, err = sqlite.NewStore(filepath.Join(dir, "data")); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embCache, err := newCache(settings.Cache, a.store)
	if err != nil {
		return nil, err
	}
	a.Embedder = services.NewEmbedder(a.Registry, embCache,
		services.WithConcurrency(settings.Retrieval.Concurrency),
		services.WithBatchSize(settings.Retrieval.BatchSize),
		services.WithUseCase(settings.Embedding.UseCase),
	)

	var indexOpts []vectorindex.Option
	contextLength := 0
	if model, err := a.Embedder.Model(); err == nil {
		desc := model.Descriptor()
		contextLength = desc.ContextLength
		indexOpts = append(indexOpts, vectorindex.WithModel(desc.ID()), vectorindex.WithDimensions(desc.Dimensions))
	}
	a.Index = vectorindex.New(indexOpts...)

	tok, err := newTokenizer(settings.Retrieval.Tokenizer)
	if err != nil {
		return nil, err
	}
	processors := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processors, tok)
	chunkPipeline, err := processors.BuildPipeline(domain.PipelineConfigFor(settings.Retrieval, contextLength))
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	root, err := filepath.Abs(settings.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	a.Workspace = filesystem.New(WorkspaceID(root), root, settings.Workspace.Extensions,
		filesystem.WithNormalisers(normalisers.Default()))
	if err := a.Workspace.Validate(ctx); err != nil {
		return nil, err
	}

	a.Pipeline = services.NewRetrievalPipeline(
		a.Workspace,
		chunkPipeline,
		a.Embedder,
		a.Index,
		a.store.ChunkStore(),
		a.store.IndexStateStore(),
		services.WithMinScore(settings.Retrieval.MinScore),
		services.WithChunkingFingerprint(settings.Retrieval.ChunkingFingerprint(contextLength)),
	)

	prompts, err := file.NewPromptStore(filepath.Join(dir, "prompts"))
	if err != nil {
		return nil, err
	}
	a.Answer = services.NewAnswerService(a.Pipeline, a.Registry, prompts)

	if err := a.restore(ctx); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// WorkspaceID derives a stable workspace identifier from its absolute root.
func WorkspaceID(root string) string {
	return "fs:" + filepath.ToSlash(root)
}

// Save persists the similarity index.
func (a *App) Save(ctx context.Context) error {
	var buf bytes.Buffer
	if err := a.Index.WriteSnapshot(&buf); err != nil {
		return err
	}
	if err := a.store.SaveSnapshot(ctx, snapshotName, buf.Bytes()); err != nil {
		return err
	}
	logger.Debug("saved index snapshot: %d entries, %d bytes", a.Index.Len(), buf.Len())
	return nil
}

// Close releases all resources.
func (a *App) Close() error {
	var errs []error
	if a.Workspace != nil {
		errs = append(errs, a.Workspace.Close())
	}
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// restore loads the saved index and drops index state the snapshot cannot
// back, so those documents are re-indexed rather than skipped.
func (a *App) restore(ctx context.Context) error {
	data, err := a.store.LoadSnapshot(ctx, snapshotName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load index snapshot: %w", err)
	default:
		if err := a.loadSnapshot(data); err != nil {
			logger.Warn("discarding index snapshot: %v", err)
		}
	}

	states := a.store.IndexStateStore()
	all, err := states.ListStates(ctx)
	if err != nil {
		return err
	}
	dropped := 0
	for _, s := range all {
		if s.Embedded > 0 && a.Index.DocumentLen(s.DocumentID) == 0 {
			if err := states.DeleteState(ctx, s.DocumentID); err != nil {
				return err
			}
			dropped++
		}
	}
	if dropped > 0 {
		logger.Info("%d documents need re-indexing", dropped)
	}
	return nil
}

// loadSnapshot reads data into the index unless it was built by a different
// embedding model than the one now configured.
func (a *App) loadSnapshot(data []byte) error {
	want := a.Index.Stats()
	restored := vectorindex.New()
	if err := restored.ReadSnapshot(bytes.NewReader(data)); err != nil {
		return err
	}
	got := restored.Stats()
	if got.Live == 0 {
		return nil
	}
	if want.Model != "" && (got.Model != want.Model || got.Dimensions != want.Dimensions) {
		return fmt.Errorf("%w: snapshot is %s/%d, model is %s/%d",
			domain.ErrModelMismatch, got.Model, got.Dimensions, want.Model, want.Dimensions)
	}
	return a.Index.ReadSnapshot(bytes.NewReader(data))
}

func configDir(opts Options) (string, error) {
	if opts.ConfigDir != "" {
		return opts.ConfigDir, nil
	}
	return DefaultConfigDir()
}

// newCache layers the in-memory LRU over the SQLite cache when persistence is on.
func newCache(cfg domain.CacheSettings, store *sqlite.Store) (driven.EmbeddingCache, error) {
	front, err := lru.New(cfg.Size, cfg.TTL)
	if err != nil {
		return nil, err
	}
	if !cfg.Persist {
		return front, nil
	}
	return cache.NewTiered(front, store.EmbeddingCache(cfg.PersistSize)), nil
}

func newTokenizer(kind domain.TokenizerKind) (driven.Tokenizer, error) {
	switch kind {
	case domain.TokenizerCL100K:
		return tiktoken.New()
	case domain.TokenizerWords, "":
		return words.New(), nil
	default:
		return nil, fmt.Errorf("%w: tokenizer %q", domain.ErrUnsupportedType, kind)
	}
}
