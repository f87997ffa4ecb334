// Package filesystem exposes a local directory tree as a workspace of
// plain-text documents.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure Workspace implements the interfaces.
var (
	_ driven.Workspace        = (*Workspace)(nil)
	_ driven.WorkspaceWatcher = (*Workspace)(nil)
)

// MaxFileSize is the largest file read as a document.
const MaxFileSize = 10 << 20

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("workspace closed")

// DefaultExtensions are the file extensions treated as text when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// revision is the last observed state of one document.
type revision struct {
	hash string
	rev  uint64
}

// NormaliserLookup finds the normaliser for a MIME type.
type NormaliserLookup interface {
	For(mimeType string) (driven.Normaliser, bool)
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithNormalisers extracts text from files whose MIME type has a normaliser.
// Other files are read as UTF-8 text.
func WithNormalisers(lookup NormaliserLookup) Option {
	return func(w *Workspace) {
		w.normalisers = lookup
	}
}

// Workspace reads documents from a directory tree.
// Document IDs are slash-separated paths relative to the root.
type Workspace struct {
	id          string
	rootPath    string
	extensions  []string
	normalisers NormaliserLookup

	mu        sync.Mutex
	revisions map[string]revision
	watchers  []*fsnotify.Watcher
	closed    bool
}

// New creates a workspace rooted at rootPath.
// Extensions are matched case-insensitively and default to DefaultExtensions.
func New(id, rootPath string, extensions []string, opts ...Option) *Workspace {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = e
	}
	w := &Workspace{
		id:         id,
		rootPath:   rootPath,
		extensions: exts,
		revisions:  make(map[string]revision),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string {
	return w.id
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.rootPath
}

// Validate checks the root path is a readable directory.
func (w *Workspace) Validate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(w.rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: root path %s does not exist", domain.ErrInvalidConfiguration, w.rootPath)
		}
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root path %s is not a directory", domain.ErrInvalidConfiguration, w.rootPath)
	}
	return nil
}

// ListDocuments walks the tree and returns the IDs of all matching files, sorted.
// Hidden files and directories are skipped.
func (w *Workspace) ListDocuments(ctx context.Context) ([]string, error) {
	if err := w.Validate(ctx); err != nil {
		return nil, err
	}

	var ids []string
	err := filepath.WalkDir(w.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(w.rootPath, path)
		if relErr != nil || rel == "." {
			return nil //nolint:nilerr // the root itself or an unrelatable path
		}
		if isHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.matches(path) {
			ids = append(ids, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)
	return ids, nil
}

// GetDocument reads a document and assigns its revision.
// The revision advances only when the content hash changes.
func (w *Workspace) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := w.resolve(id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("stat %s: %w", id, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: document %s exceeds %d bytes", domain.ErrUnsupportedType, id, MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	mimeType := detectMIMEType(path)
	text, err := w.extract(id, mimeType, data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	//nolint:gosec // modification times are after the epoch
	rev := w.observe(id, hash, uint64(info.ModTime().UnixNano()))

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	title := text.Title
	if title == "" {
		title = filepath.Base(path)
	}
	return &domain.Document{
		ID:          id,
		WorkspaceID: w.id,
		URI:         "file://" + filepath.ToSlash(abs),
		Title:       title,
		Content:     text.Content,
		Revision:    rev,
		Metadata: map[string]any{
			"path":         id,
			"mime_type":    mimeType,
			"format":       text.Format,
			"size":         info.Size(),
			"modified":     info.ModTime().UTC(),
			"content_hash": hash,
		},
	}, nil
}

// extract converts file contents to document text.
func (w *Workspace) extract(id, mimeType string, data []byte) (*driven.NormalisedText, error) {
	if w.normalisers != nil {
		if n, ok := w.normalisers.For(mimeType); ok {
			text, err := n.Normalise(id, data)
			if err != nil {
				return nil, fmt.Errorf("%w: document %s: %v", domain.ErrUnsupportedType, id, err)
			}
			return text, nil
		}
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: document %s is not UTF-8 text", domain.ErrUnsupportedType, id)
	}
	return &driven.NormalisedText{Content: string(data), Format: "text"}, nil
}

// observe records the content hash of a document and returns its revision.
// The modification time seeds the revision so it survives restarts; an
// unchanged hash keeps the previous revision, and a changed one always
// moves it forward.
func (w *Workspace) observe(id, hash string, modified uint64) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, seen := w.revisions[id]
	switch {
	case seen && prev.hash == hash:
		return prev.rev
	case seen && modified <= prev.rev:
		modified = prev.rev + 1
	case modified == 0:
		modified = 1
	}
	w.revisions[id] = revision{hash: hash, rev: modified}
	return modified
}

// forget drops the revision of a removed document.
func (w *Workspace) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.revisions, id)
}

// forgetTree drops the revisions of every document below the directory
// dir and returns their IDs, sorted.
func (w *Workspace) forgetTree(dir string) []string {
	prefix := dir + "/"

	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []string
	for id := range w.revisions {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
			delete(w.revisions, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// resolve maps a document ID to a path inside the root.
func (w *Workspace) resolve(id string) (string, error) {
	if id == "" || filepath.IsAbs(id) {
		return "", fmt.Errorf("%w: document ID %q", domain.ErrInvalidInput, id)
	}
	rel := filepath.Clean(filepath.FromSlash(id))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: document ID %q escapes the workspace", domain.ErrInvalidInput, id)
	}
	if isHidden(rel) || !w.matches(rel) {
		return "", fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return filepath.Join(w.rootPath, rel), nil
}

// documentID maps an absolute or root-joined path back to a document ID.
func (w *Workspace) documentID(path string) (string, bool) {
	rel, err := filepath.Rel(w.rootPath, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Workspace) matches(path string) bool {
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// Close stops all watchers. Close is idempotent.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, fw := range w.watchers {
		if err := fw.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.watchers = nil
	return errors.Join(errs...)
}

// isHidden reports whether any path element starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// textTypes covers extensions the mime package does not know reliably.
var textTypes = map[string]string{
	".md":       "text/markdown",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".htm":      "text/html",
	".html":     "text/html",
	".markdown": "text/markdown",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".ts":       "text/typescript",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/toml",
	".sh":       "text/x-shellscript",
	".sql":      "text/x-sql",
}

// detectMIMEType returns the MIME type for a file name without parameters.
func detectMIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := textTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.Index(t, ";"); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}
