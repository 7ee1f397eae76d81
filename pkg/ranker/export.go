package ranker

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/metrics"
)

// ExportMode selects how top-N files land in the destination folder.
type ExportMode int

const (
	// Copy writes a byte copy of each file.
	Copy ExportMode = iota
	// Symlink creates a symbolic link to each original file.
	Symlink
)

func (m ExportMode) String() string {
	if m == Symlink {
		return "symlink"
	}
	return "copy"
}

// ParseExportMode maps "copy" and "symlink" (or "link") to an ExportMode.
func ParseExportMode(s string) (ExportMode, error) {
	switch s {
	case "copy", "":
		return Copy, nil
	case "symlink", "link":
		return Symlink, nil
	}
	return Copy, fmt.Errorf("unknown export mode: %s", s)
}

// CSVHeader is the header row of the rankings export.
var CSVHeader = []string{"rank", "filename", "filepath", "mu", "sigma", "ordinal", "comparisons"}

// ExportRankings writes every image, best first, as CSV to path and returns
// the number of rows written.
func (e *Engine) ExportRankings(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		slog.Error("export_rankings_create_failed", "path", path, "error", err)
		return 0, errors.Wrap(err, "failed to create rankings file")
	}

	n, err := e.WriteRankings(ctx, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "failed to close rankings file")
	}
	if err != nil {
		return 0, err
	}

	slog.Info("export_rankings_complete", "path", path, "image_count", n)
	return n, nil
}

// WriteRankings writes the rankings CSV to w.
func (e *Engine) WriteRankings(ctx context.Context, w io.Writer) (int, error) {
	images, err := e.repo.List(ctx, db.OrderByOrdinal)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, errors.Wrap(err, "failed to write header")
	}
	for i, img := range images {
		row := []string{
			strconv.Itoa(i + 1),
			img.Filename,
			img.Filepath,
			formatScore(img.Mu),
			formatScore(img.Sigma),
			formatScore(img.Ordinal()),
			strconv.Itoa(img.ComparisonCount),
		}
		if err := cw.Write(row); err != nil {
			return 0, errors.Wrap(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, errors.Wrap(err, "failed to flush rankings")
	}
	return len(images), nil
}

// formatScore rounds to 3 decimals.
func formatScore(v float64) string {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		r = 0 // no "-0.000"
	}
	return strconv.FormatFloat(r, 'f', 3, 64)
}

// ExportResult lists the outcome of a top-N export.
type ExportResult struct {
	// Written holds the destination paths created.
	Written []string
	// Skipped holds source paths that no longer exist.
	Skipped []string
}

// ExportTop copies or links the n best images into destDir as
// "<rank>_<filename>" with a 4 digit rank. Missing sources are skipped.
// Per-file failures do not stop the batch; they are returned together as an
// *errors.ExportPartialFailure. Cancellation is checked between files and the
// result always reflects what was written.
func (e *Engine) ExportTop(ctx context.Context, n int, destDir string, mode ExportMode) (*ExportResult, error) {
	top, err := e.repo.Top(ctx, n)
	if err != nil {
		return nil, err
	}
	return e.ExportImages(ctx, top, destDir, mode)
}

// ExportImages writes images into destDir with ranks taken from their
// position in the slice.
func (e *Engine) ExportImages(ctx context.Context, images []*db.Image, destDir string, mode ExportMode) (*ExportResult, error) {
	slog.Info("export_top_start", "dest_dir", destDir, "image_count", len(images), "mode", mode.String())

	if err := os.MkdirAll(destDir, 0755); err != nil {
		slog.Error("export_dest_create_failed", "dest_dir", destDir, "error", err)
		return nil, errors.Wrap(err, "failed to create destination")
	}

	e.validator.Reset()
	res := &ExportResult{}
	var failures []errors.ExportFailure

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			slog.Warn("export_top_cancelled", "written", len(res.Written), "remaining", len(images)-i)
			return res, err
		}

		if !e.exists(img.Filepath) {
			slog.Warn("export_source_missing", "filepath", img.Filepath)
			res.Skipped = append(res.Skipped, img.Filepath)
			e.metrics.RecordExportFile(metrics.ExportSkipped)
			continue
		}

		name := fmt.Sprintf("%04d_%s", i+1, img.Filename)
		dst, err := e.exportOne(img.Filepath, destDir, name, mode)
		if err != nil {
			slog.Error("export_file_failed", "filepath", img.Filepath, "error", err)
			failures = append(failures, errors.ExportFailure{Source: img.Filepath, Err: err})
			e.metrics.RecordExportFile(metrics.ExportFailed)
			continue
		}
		res.Written = append(res.Written, dst)
		e.metrics.RecordExportFile(metrics.ExportWritten)
	}

	slog.Info("export_top_complete",
		"dest_dir", destDir,
		"written", len(res.Written),
		"skipped", len(res.Skipped),
		"failed", len(failures))

	if len(failures) > 0 {
		return res, &errors.ExportPartialFailure{Written: res.Written, Failures: failures}
	}
	return res, nil
}

func (e *Engine) exportOne(src, destDir, name string, mode ExportMode) (string, error) {
	dst, err := e.validator.ValidateDestination(destDir, name)
	if err != nil {
		return "", err
	}

	if mode == Symlink {
		if err := e.validator.ValidateSymlinkTarget(dst, src); err != nil {
			return "", err
		}
		if target, err := os.Readlink(dst); err == nil && target == src {
			return dst, nil
		}
		if err := os.Symlink(src, dst); err != nil {
			return "", errors.Wrap(err, "failed to create symlink")
		}
		return dst, nil
	}

	if err := e.copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// copyFile copies src to dst and keeps the modification time.
func (e *Engine) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open source")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat source")
	}
	if err := e.validator.ValidateFileSize(info.Size()); err != nil {
		return err
	}
	if err := e.validator.AddExportedSize(info.Size()); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(err, "failed to create destination file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to copy file")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "failed to close destination file")
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		slog.Warn("export_chtimes_failed", "path", dst, "error", err)
	}
	return nil
}
