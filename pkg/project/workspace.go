package project

import (
	"log/slog"
	"sync"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/prefetch"
	"github.com/pixelsort/imgrank/pkg/ranker"
)

// Workspace holds the active project: its engine and, once requested, its
// prefetcher. Switching projects tears both down so no session state or
// pending prefetch survives into the next project.
type Workspace struct {
	manager      *Manager
	engineOpts   ranker.Options
	prefetchOpts prefetch.Options

	mu         sync.Mutex
	name       string
	engine     *ranker.Engine
	prefetcher *prefetch.Prefetcher
}

// NewWorkspace returns a workspace with no open project. engineOpts.DBPath is
// ignored; it is set per project.
func NewWorkspace(m *Manager, engineOpts ranker.Options, prefetchOpts prefetch.Options) *Workspace {
	return &Workspace{manager: m, engineOpts: engineOpts, prefetchOpts: prefetchOpts}
}

// Switch closes the current project and opens name. An empty name opens the
// legacy store.
func (w *Workspace) Switch(name string) (*ranker.Engine, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.closeLocked(); err != nil {
		slog.Warn("workspace_close_failed", "project", w.name, "error", err)
	}

	opts := w.engineOpts
	opts.DBPath = w.manager.Path(name)
	engine, err := ranker.New(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open project")
	}

	if name == "" {
		name = LegacyName
	}
	w.name = name
	w.engine = engine
	slog.Info("workspace_switched", "project", name, "db_path", opts.DBPath, "session_id", engine.SessionID())
	return engine, nil
}

// Name returns the active project name.
func (w *Workspace) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.name
}

// Engine returns the active engine, or nil before the first Switch.
func (w *Workspace) Engine() *ranker.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine
}

// Prefetcher returns the prefetcher for the active engine, starting it on
// first use.
func (w *Workspace) Prefetcher() (*prefetch.Prefetcher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.engine == nil {
		return nil, errors.New("no project open")
	}
	if w.prefetcher == nil {
		w.prefetcher = prefetch.New(w.engine, w.prefetchOpts)
	}
	return w.prefetcher, nil
}

// Close shuts down the active project.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Workspace) closeLocked() error {
	if w.prefetcher != nil {
		w.prefetcher.Close()
		// The store is closed next; let an in-flight pick finish first.
		w.prefetcher.Wait()
		w.prefetcher = nil
	}
	if w.engine == nil {
		return nil
	}
	err := w.engine.Close()
	w.engine = nil
	w.name = ""
	return err
}
