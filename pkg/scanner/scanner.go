// Package scanner discovers image files on disk.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pixelsort/imgrank/pkg/errors"
)

// SupportedExtensions lists the image extensions picked up by a scan.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}

// IsImageFile checks if a file extension belongs to a supported image file
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
		return true
	default:
		return false
	}
}

// Result of a folder walk.
type Result struct {
	Paths []string
	// Skipped holds entries that could not be read; the walk continues past them.
	Skipped map[string]error
}

// Scan returns the absolute paths of image files under folder, sorted.
// The folder itself must exist and be a directory; unreadable entries below it
// are reported in Result.Skipped instead of failing the scan.
func Scan(ctx context.Context, folder string, recursive bool) (*Result, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve folder")
	}

	info, err := os.Stat(root)
	if err != nil {
		slog.Error("scan_folder_unavailable", "folder", root, "error", err)
		return nil, errors.Wrap(err, "folder does not exist")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	slog.Info("scan_started", "folder", root, "recursive", recursive)

	res := &Result{Skipped: make(map[string]error)}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("scan_entry_skipped", "path", path, "error", err)
			res.Skipped[path] = err
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsImageFile(path) {
			return nil
		}
		res.Paths = append(res.Paths, path)
		return nil
	})
	if err != nil {
		slog.Error("scan_failed", "folder", root, "error", err)
		return nil, errors.Wrap(err, "scan failed")
	}

	sort.Strings(res.Paths)
	slog.Info("scan_complete", "folder", root, "image_count", len(res.Paths), "skipped", len(res.Skipped))
	return res, nil
}

// FileExists is the existence check used for missing-file detection.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
