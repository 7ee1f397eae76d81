package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"a.png", true},
		{"a.JPG", true},
		{"a.jpeg", true},
		{"a.WebP", true},
		{"a.gif", true},
		{"a.bmp", true},
		{"a.tiff", false},
		{"a.txt", false},
		{"png", false},
	}

	for _, tt := range tests {
		if got := IsImageFile(tt.path); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestScan_Recursive(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "b.png", "a.JPG", "notes.txt", "sub/c.webp", "sub/deeper/d.gif")

	res, err := Scan(context.Background(), root, true)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "sub", "c.webp"),
		filepath.Join(root, "sub", "deeper", "d.gif"),
	}
	if len(res.Paths) != len(want) {
		t.Fatalf("got %v, want %v", res.Paths, want)
	}
	for i := range want {
		if res.Paths[i] != want[i] {
			t.Errorf("path %d: got %s, want %s", i, res.Paths[i], want[i])
		}
	}
}

func TestScan_NonRecursive(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "top.bmp", "sub/nested.png")

	res, err := Scan(context.Background(), root, false)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(res.Paths) != 1 || filepath.Base(res.Paths[0]) != "top.bmp" {
		t.Errorf("unexpected paths: %v", res.Paths)
	}
}

func TestScan_MissingFolder(t *testing.T) {
	if _, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), true); err == nil {
		t.Error("expected error for missing folder")
	}
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Scan(ctx, root, true); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFileExists(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.png")

	if !FileExists(filepath.Join(root, "a.png")) {
		t.Error("expected file to exist")
	}
	if FileExists(filepath.Join(root, "b.png")) {
		t.Error("expected missing file")
	}
	if FileExists(root) {
		t.Error("directories are not image files")
	}
}
