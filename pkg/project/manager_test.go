package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/prefetch"
	"github.com/pixelsort/imgrank/pkg/ranker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return m
}

// seedStore writes two images and one comparison into the store at path.
func seedStore(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	repo, err := db.NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.UpsertImages(ctx, []string{"/photos/a.png", "/photos/b.png"})
	require.NoError(t, err)
	images, err := repo.List(ctx, db.OrderByAddedAt)
	require.NoError(t, err)
	_, err = repo.ApplyComparison(ctx, images[0].ID, images[1].ID, false)
	require.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Summer Trip", "Summer_Trip"},
		{"  best-of 2024!  ", "best-of_2024"},
		{"a/b\\c", "abc"},
		{"***", "untitled"},
		{"", "untitled"},
		{"café", "café"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreate_UniqueNames(t *testing.T) {
	m := newTestManager(t)

	p1, err := m.Create("My Project")
	require.NoError(t, err)
	assert.Equal(t, "My_Project", p1.Name)
	assert.Equal(t, filepath.Join(m.Dir(), "rankings_My_Project.db"), p1.Path)
	assert.FileExists(t, p1.Path)

	p2, err := m.Create("My Project")
	require.NoError(t, err)
	assert.Equal(t, "My_Project_1", p2.Name)

	p3, err := m.Create("My Project")
	require.NoError(t, err)
	assert.Equal(t, "My_Project_2", p3.Name)
}

func TestList_WithLegacyAndCounts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	seedStore(t, m.Path(""))
	_, err := m.Create("zeta")
	require.NoError(t, err)
	_, err = m.Create("alpha")
	require.NoError(t, err)

	projects, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)

	assert.Equal(t, LegacyName, projects[0].Name)
	assert.True(t, projects[0].Legacy)
	assert.Equal(t, 2, projects[0].ImageCount)
	assert.Equal(t, 1, projects[0].ComparisonCount)

	assert.Equal(t, "alpha", projects[1].Name)
	assert.Equal(t, "zeta", projects[2].Name)
	assert.Zero(t, projects[2].ImageCount)
}

func TestRenameLegacy(t *testing.T) {
	m := newTestManager(t)

	_, err := m.RenameLegacy("named")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	seedStore(t, m.Path(LegacyName))
	p, err := m.RenameLegacy("named")
	require.NoError(t, err)
	assert.Equal(t, "named", p.Name)
	assert.FileExists(t, p.Path)
	assert.False(t, m.Exists(LegacyName))
}

func TestRenameAndDuplicate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	p, err := m.Create("one")
	require.NoError(t, err)
	seedStore(t, p.Path)

	renamed, err := m.Rename("one", "two")
	require.NoError(t, err)
	assert.Equal(t, "two", renamed.Name)
	assert.False(t, m.Exists("one"))

	_, err = m.Rename("missing", "x")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	dup, err := m.Duplicate(ctx, "two", "two")
	require.NoError(t, err)
	assert.Equal(t, "two_1", dup.Name)

	repo, err := db.NewRepository(dup.Path)
	require.NoError(t, err)
	defer repo.Close()
	images, comparisons, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, images)
	assert.Equal(t, 1, comparisons)

	_, err = m.Duplicate(ctx, "missing", "x")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestWorkspace_SwitchResetsSession(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)

	m := newTestManager(t)
	ctx := context.Background()

	imgDir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(imgDir, name), []byte(name), 0644))
	}

	ws := NewWorkspace(m, ranker.Options{}, prefetch.Options{})
	defer ws.Close()

	first, err := ws.Switch("first")
	require.NoError(t, err)
	assert.Equal(t, "first", ws.Name())
	_, err = first.Scan(ctx, imgDir, false)
	require.NoError(t, err)
	_, err = first.PickPair(ctx)
	require.NoError(t, err)

	pf, err := ws.Prefetcher()
	require.NoError(t, err)
	require.NotNil(t, pf)

	second, err := ws.Switch("second")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, ws.Engine())
	assert.NotEqual(t, first.SessionID(), second.SessionID())

	_, err = pf.Next(ctx)
	assert.ErrorIs(t, err, prefetch.ErrClosed)

	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalImages)
	assert.Zero(t, stats.SessionPairsShown)

	back, err := ws.Switch("first")
	require.NoError(t, err)
	stats, err = back.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalImages)
	assert.Zero(t, stats.SessionPairsShown)
}

func TestWorkspace_PrefetcherNeedsProject(t *testing.T) {
	ws := NewWorkspace(newTestManager(t), ranker.Options{}, prefetch.Options{})
	_, err := ws.Prefetcher()
	assert.Error(t, err)
	assert.NoError(t, ws.Close())
}
