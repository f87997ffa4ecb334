package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/markhor/internal/core/ports/driven"
	"github.com/custodia-labs/markhor/internal/logger"
)

// changeBuffer is the capacity of the change channel.
const changeBuffer = 100

// Watch emits document changes under the root until ctx is cancelled.
// Directories created after Watch starts are watched too.
func (w *Workspace) Watch(ctx context.Context) (<-chan driven.DocumentChange, error) {
	if err := w.Validate(ctx); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = fw.Close()
		return nil, ErrClosed
	}
	w.watchers = append(w.watchers, fw)
	w.mu.Unlock()

	if err := w.addTree(fw, w.rootPath); err != nil {
		w.dropWatcher(fw)
		return nil, err
	}

	changes := make(chan driven.DocumentChange, changeBuffer)
	go w.run(ctx, fw, changes)
	return changes, nil
}

func (w *Workspace) run(ctx context.Context, fw *fsnotify.Watcher, changes chan<- driven.DocumentChange) {
	defer close(changes)
	defer w.dropWatcher(fw)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			for _, change := range w.handleFsEvent(fw, event) {
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warn("Workspace watcher error: %v", err)
		}
	}
}

// handleFsEvent converts an fsnotify event into document changes.
//
// Removing or renaming a directory removes every document seen below it,
// and a directory created or moved in reports the documents it holds.
func (w *Workspace) handleFsEvent(fw *fsnotify.Watcher, event fsnotify.Event) []driven.DocumentChange {
	id, ok := w.documentID(event.Name)
	if !ok || isHidden(id) {
		return nil
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		var changes []driven.DocumentChange
		if w.matches(event.Name) {
			w.forget(id)
			changes = append(changes, driven.DocumentChange{DocumentID: id, Kind: driven.ChangeRemoved})
		}
		for _, child := range w.forgetTree(id) {
			changes = append(changes, driven.DocumentChange{DocumentID: child, Kind: driven.ChangeRemoved})
		}
		return changes

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if !event.Has(fsnotify.Create) {
				return nil
			}
			if fw != nil {
				if err := w.addTree(fw, event.Name); err != nil {
					logger.Warn("Cannot watch %s: %v", event.Name, err)
				}
			}
			return w.treeChanges(event.Name)
		}
		if !info.Mode().IsRegular() || !w.matches(event.Name) {
			return nil
		}
		return []driven.DocumentChange{{DocumentID: id, Kind: driven.ChangeModified}}
	}
	return nil
}

// treeChanges reports every document below dir as modified.
func (w *Workspace) treeChanges(dir string) []driven.DocumentChange {
	var changes []driven.DocumentChange
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		id, ok := w.documentID(path)
		if !ok {
			return nil
		}
		if isHidden(id) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.matches(path) {
			changes = append(changes, driven.DocumentChange{DocumentID: id, Kind: driven.ChangeModified})
		}
		return nil
	})
	return changes
}

// addTree watches dir and every non-hidden directory below it.
func (w *Workspace) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("root path error: %w", err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.documentID(path); ok && isHidden(rel) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Workspace) dropWatcher(fw *fsnotify.Watcher) {
	w.mu.Lock()
	for i, existing := range w.watchers {
		if existing == fw {
			w.watchers = append(w.watchers[:i], w.watchers[i+1:]...)
			break
		}
	}
	w.mu.Unlock()
	_ = fw.Close()
}
