package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/markhor/internal/core/domain"
	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// promptTemplate is a built-in prompt and the number of %s verbs callers fill.
type promptTemplate struct {
	text string
	args int
}

// defaultPrompts are written to the prompt directory on first use and
// returned when a user file is missing or unusable.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]promptTemplate{
	driven.PromptAnswerSystem: {text: `You answer questions using only the numbered passages provided by the user.
Cite passages by number in square brackets, for example [2].
If the passages do not contain the answer, say that you do not know.`},

	driven.PromptAnswerContext: {args: 2, text: `Passages:
%s

Question: %s`},

	driven.PromptQueryRewrite: {args: 1, text: `Rewrite the question below as a short search query for a document index.
Keep names and technical terms. Return ONLY the query.

Question: %s
Query:`},
}

// PromptStore loads prompt templates from <dir>/<name>.txt.
// Nothing touches disk until the first Load.
type PromptStore struct {
	dir string

	initOnce sync.Once
	initErr  error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a prompt store rooted at dir.
// An empty dir means ~/.markhor/prompts.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".markhor", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]string)}, nil
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template for name. A user file wins when it carries the
// placeholders the caller will fill; otherwise the built-in default is used.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.seed)

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	def, known := defaultPrompts[name]
	text, err := s.read(name)
	switch {
	case err == nil && known && strings.Count(text, "%s") != def.args:
		logger.Warn("prompt %s: expected %d %%s placeholders, using default", name, def.args)
		text = def.text
	case err != nil && known:
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("prompt %s: %v, using default", name, err)
		}
		text = def.text
	case err != nil:
		return "", fmt.Errorf("%w: prompt %q", domain.ErrNotFound, name)
	}

	s.mu.Lock()
	if existing, ok := s.cache[name]; ok {
		text = existing
	} else {
		s.cache[name] = text
	}
	s.mu.Unlock()
	return text, nil
}

// Reload clears cached templates.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

func (s *PromptStore) read(name string) (string, error) {
	if s.initErr != nil {
		return "", s.initErr
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// seed creates the directory and writes defaults that are not already there.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}
	for name, p := range defaultPrompts {
		path := filepath.Join(s.dir, name+".txt")
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.WriteFile(path, []byte(p.text+"\n"), 0o600); err != nil {
			s.initErr = fmt.Errorf("write default prompt %q: %w", name, err)
			return
		}
	}
}
