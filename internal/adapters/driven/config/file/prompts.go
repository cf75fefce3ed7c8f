package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

const (
	promptExt  = ".txt"
	readmeName = "README.md"
)

//nolint:lll // Prompt content is long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: `You are a helpful assistant that answers questions about the user's indexed documents.

Answer using only the information in the Relevant Context section and the conversation so far.
Do not invent facts, figures, dates or names. If the context does not contain the answer, say plainly that the information is not in the documents instead of guessing.
When you quote a figure, reproduce it exactly as it appears in the context.`,

	driven.PromptNoContext: `No relevant context was found in the indexed documents.`,
}

const readme = `# pdfqa Prompts

This directory contains the prompts used when answering questions.

- answer_system.txt: system instruction sent with every question
- no_context.txt: placed in the context block when retrieval finds nothing

Edited files are picked up without a restart. An empty or deleted file
falls back to the built-in text; deleted files are recreated on the next run.
`

// cachedPrompt is a prompt file's text as of its modification time.
type cachedPrompt struct {
	text    string
	modTime time.Time
}

// PromptStore serves the answer prompts from text files in a directory.
//
// The directory and default files are created on the first Load. Files are
// re-read when their modification time changes, so a long-running chat or
// MCP session sees edits. Only the names in the driven package are known;
// a missing, unreadable or blank file yields the built-in default.
type PromptStore struct {
	dir string

	initOnce sync.Once
	initErr  error

	mu    sync.Mutex
	cache map[string]cachedPrompt
}

// NewPromptStore creates a prompt store rooted at dir.
// If dir is empty, defaults to ~/.pdfqa/prompts/. No I/O happens until Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".pdfqa", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]cachedPrompt)}, nil
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the prompt text for name.
func (s *PromptStore) Load(name string) (string, error) {
	def, ok := defaultPrompts[name]
	if !ok {
		return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	}

	s.initOnce.Do(func() { s.initErr = s.writeDefaults() })
	if s.initErr != nil {
		return def, nil
	}

	path := s.path(name)
	info, err := os.Stat(path)
	if err != nil {
		return def, nil
	}

	s.mu.Lock()
	cached, hit := s.cache[name]
	s.mu.Unlock()
	if hit && cached.modTime.Equal(info.ModTime()) {
		return cached.text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return def, nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = def
	}

	s.mu.Lock()
	s.cache[name] = cachedPrompt{text: text, modTime: info.ModTime()}
	s.mu.Unlock()
	return text, nil
}

// Reload drops cached prompt text.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]cachedPrompt)
	s.mu.Unlock()
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+promptExt)
}

// writeDefaults creates the directory and any missing default files.
// Existing files are never overwritten.
func (s *PromptStore) writeDefaults() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}
	files := map[string]string{readmeName: readme}
	for name, text := range defaultPrompts {
		files[name+promptExt] = text + "\n"
	}
	for name, text := range files {
		if err := writeIfMissing(filepath.Join(s.dir, name), text); err != nil {
			return err
		}
	}
	return nil
}

func writeIfMissing(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
