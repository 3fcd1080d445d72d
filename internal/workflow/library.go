package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Library holds the workflows loaded from a directory, keyed by document
// name. Lookups are cheap; Reload re-reads the directory.
type Library struct {
	dir string

	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewLibrary creates a library rooted at dir and performs an initial load.
func NewLibrary(dir string) (*Library, error) {
	l := &Library{
		dir:       dir,
		workflows: make(map[string]*Workflow),
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads every .yaml/.yml document under the library directory.
// A single invalid document fails the whole reload so a running library is
// never left with a partial set.
func (l *Library) Reload() error {
	loaded := make(map[string]*Workflow)

	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		w, err := Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if prev, dup := loaded[w.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate workflow name %q (already defined)", ErrInvalidWorkflow, filepath.Base(path), prev.Name)
		}
		loaded[w.Name] = w
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("workflow directory %s: %w", l.dir, err)
		}
		return err
	}

	l.mu.Lock()
	l.workflows = loaded
	l.mu.Unlock()
	return nil
}

// Get retrieves a workflow by name. Returns ErrNotFound if absent.
func (l *Library) Get(name string) (*Workflow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return w, nil
}

// Names returns the loaded workflow names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.workflows))
	for name := range l.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded workflows.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.workflows)
}
