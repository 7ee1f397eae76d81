// Package project manages ranking projects: one self-contained store file
// per project inside a projects directory.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
)

// LegacyName is the display name of the unnamed store left by older versions.
const LegacyName = "(Unsaved Project)"

const (
	filePrefix = "rankings_"
	fileSuffix = ".db"
	legacyFile = "rankings.db"
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\-\s]`)

// Project describes one store file.
type Project struct {
	Name            string
	Path            string
	Legacy          bool
	ImageCount      int
	ComparisonCount int
}

// Manager operates on whole store files in a directory.
type Manager struct {
	dir string
}

// NewManager creates the projects directory if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("project_dir_create_failed", "dir", dir, "error", err)
		return nil, errors.Wrap(err, "failed to create projects directory")
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the projects directory.
func (m *Manager) Dir() string {
	return m.dir
}

// SanitizeName strips characters other than letters, digits, '_', '-' and
// spaces, then turns spaces into underscores. An empty result becomes "untitled".
func SanitizeName(name string) string {
	safe := strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
	safe = strings.ReplaceAll(safe, " ", "_")
	if safe == "" {
		return "untitled"
	}
	return safe
}

// Path returns the store file for a project name. The legacy name and the
// empty name map to the legacy file.
func (m *Manager) Path(name string) string {
	if name == "" || name == LegacyName {
		return filepath.Join(m.dir, legacyFile)
	}
	return filepath.Join(m.dir, filePrefix+name+fileSuffix)
}

// Exists reports whether the project's store file is present.
func (m *Manager) Exists(name string) bool {
	_, err := os.Stat(m.Path(name))
	return err == nil
}

// uniqueName sanitizes name and appends _1, _2, ... until no file uses it.
func (m *Manager) uniqueName(name string) string {
	base := SanitizeName(name)
	candidate := base
	for i := 1; m.Exists(candidate); i++ {
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return candidate
}

// List returns the legacy store first, if present, then named projects in
// name order. Counts are zero for stores that cannot be read.
func (m *Manager) List(ctx context.Context) ([]Project, error) {
	var projects []Project

	legacy := filepath.Join(m.dir, legacyFile)
	if _, err := os.Stat(legacy); err == nil {
		projects = append(projects, Project{Name: LegacyName, Path: legacy, Legacy: true})
	}

	matches, err := filepath.Glob(filepath.Join(m.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projects")
	}
	sort.Strings(matches)
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), filePrefix), fileSuffix)
		projects = append(projects, Project{Name: name, Path: path})
	}

	for i := range projects {
		projects[i].ImageCount, projects[i].ComparisonCount = countRows(ctx, projects[i].Path)
	}

	slog.Debug("project_list", "dir", m.dir, "project_count", len(projects))
	return projects, nil
}

func countRows(ctx context.Context, path string) (int, int) {
	repo, err := db.NewRepository(path)
	if err != nil {
		slog.Warn("project_open_failed", "path", path, "error", err)
		return 0, 0
	}
	defer repo.Close()

	images, comparisons, err := repo.Counts(ctx)
	if err != nil {
		slog.Warn("project_count_failed", "path", path, "error", err)
		return 0, 0
	}
	return images, comparisons
}

// Create makes an empty project. The name is sanitized and made unique.
func (m *Manager) Create(name string) (Project, error) {
	final := m.uniqueName(name)
	path := m.Path(final)

	repo, err := db.NewRepository(path)
	if err != nil {
		return Project{}, errors.Wrap(err, "failed to create project store")
	}
	if err := repo.Close(); err != nil {
		return Project{}, errors.Storage(err, "failed to close project store")
	}

	slog.Info("project_created", "name", final, "path", path)
	return Project{Name: final, Path: path}, nil
}

// RenameLegacy gives the legacy store a project name.
func (m *Manager) RenameLegacy(newName string) (Project, error) {
	legacy := filepath.Join(m.dir, legacyFile)
	if _, err := os.Stat(legacy); err != nil {
		return Project{}, fmt.Errorf("legacy store %s: %w", legacy, errors.ErrNotFound)
	}
	return m.move(LegacyName, newName)
}

// Rename moves a named project to a new, sanitized and unique name.
func (m *Manager) Rename(oldName, newName string) (Project, error) {
	if oldName == "" || oldName == LegacyName {
		return m.RenameLegacy(newName)
	}
	if !m.Exists(oldName) {
		return Project{}, fmt.Errorf("project %q: %w", oldName, errors.ErrNotFound)
	}
	return m.move(oldName, newName)
}

func (m *Manager) move(oldName, newName string) (Project, error) {
	final := m.uniqueName(newName)
	src, dst := m.Path(oldName), m.Path(final)

	if err := os.Rename(src, dst); err != nil {
		slog.Error("project_rename_failed", "from", src, "to", dst, "error", err)
		return Project{}, errors.Wrap(err, "failed to rename project")
	}
	// WAL sidecars follow the main file when a store was not shut down cleanly.
	for _, ext := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(src + ext); err == nil {
			if err := os.Rename(src+ext, dst+ext); err != nil {
				slog.Warn("project_sidecar_rename_failed", "file", src+ext, "error", err)
			}
		}
	}

	slog.Info("project_renamed", "from", oldName, "to", final)
	return Project{Name: final, Path: dst}, nil
}

// Duplicate copies a project into a new one with a sanitized, unique name.
func (m *Manager) Duplicate(ctx context.Context, name, newName string) (Project, error) {
	if !m.Exists(name) {
		return Project{}, fmt.Errorf("project %q: %w", name, errors.ErrNotFound)
	}

	repo, err := db.NewRepository(m.Path(name))
	if err != nil {
		return Project{}, errors.Wrap(err, "failed to open project store")
	}
	defer repo.Close()

	final := m.uniqueName(newName)
	dst := m.Path(final)
	if err := repo.Backup(ctx, dst); err != nil {
		return Project{}, err
	}

	slog.Info("project_duplicated", "from", name, "to", final)
	return Project{Name: final, Path: dst}, nil
}
