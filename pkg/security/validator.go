package security

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Validator guards file operations on image files: loading for display and
// writing top-N exports.
type Validator struct {
	maxFileSize   int64
	maxTotalSize  int64
	maxPixelRatio float64

	mu               sync.Mutex
	currentTotalSize int64
}

// NewValidator creates a new security validator. maxTotalSize bounds the bytes
// written by one export; zero disables that limit.
func NewValidator(maxFileSize, maxTotalSize int64, maxPixelRatio float64) *Validator {
	slog.Info("security_validator_init",
		"max_file_size_mb", maxFileSize/1024/1024,
		"max_total_size_mb", maxTotalSize/1024/1024,
		"max_pixel_ratio", maxPixelRatio)

	return &Validator{
		maxFileSize:   maxFileSize,
		maxTotalSize:  maxTotalSize,
		maxPixelRatio: maxPixelRatio,
	}
}

// ValidateName checks an export file name. It must be a single path element.
func (v *Validator) ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		slog.Error("security_name_validation_failed", "name", name, "reason", "empty_or_dot")
		return fmt.Errorf("security: invalid file name: %q", name)
	}
	if filepath.IsAbs(name) {
		slog.Error("security_name_validation_failed", "name", name, "reason", "absolute_path")
		return fmt.Errorf("security: absolute path not allowed: %s", name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		slog.Error("security_name_validation_failed", "name", name, "reason", "path_separator")
		return fmt.Errorf("security: path separator in file name: %s", name)
	}
	return nil
}

// ValidateDestination checks that joining name onto dir stays inside dir.
func (v *Validator) ValidateDestination(dir, name string) (string, error) {
	if err := v.ValidateName(name); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, name)
	rel, err := filepath.Rel(filepath.Clean(dir), dst)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		slog.Error("security_path_validation_failed", "dir", dir, "name", name, "reason", "path_traversal")
		return "", fmt.Errorf("security: path traversal detected: %s", name)
	}
	return dst, nil
}

// ValidateSymlinkTarget checks the target of an exported symlink. Targets must
// be absolute so the link keeps working wherever the export folder is moved.
func (v *Validator) ValidateSymlinkTarget(linkPath, target string) error {
	if !filepath.IsAbs(target) {
		slog.Error("security_symlink_validation_failed", "symlink", linkPath, "target", target, "reason", "relative_target")
		return fmt.Errorf("security: symlink target must be absolute: %s -> %s", linkPath, target)
	}
	if filepath.Clean(target) == filepath.Clean(linkPath) {
		slog.Error("security_symlink_validation_failed", "symlink", linkPath, "target", target, "reason", "self_reference")
		return fmt.Errorf("security: symlink points to itself: %s", linkPath)
	}

	slog.Debug("security_symlink_validated", "symlink", linkPath, "target", target)
	return nil
}

// ValidateFileSize checks if a file exceeds max file size
func (v *Validator) ValidateFileSize(size int64) error {
	if v.maxFileSize > 0 && size > v.maxFileSize {
		slog.Error("security_file_size_exceeded",
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.maxFileSize/1024/1024)
		return fmt.Errorf("security: file size %d exceeds max %d", size, v.maxFileSize)
	}
	return nil
}

// AddExportedSize tracks bytes written by the current export and checks the limit
func (v *Validator) AddExportedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.currentTotalSize += size

	if v.maxTotalSize > 0 && v.currentTotalSize > v.maxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total_mb", v.currentTotalSize/1024/1024,
			"max_total_mb", v.maxTotalSize/1024/1024,
			"file_size_mb", size/1024/1024)
		return fmt.Errorf("security: total exported size %d exceeds max %d",
			v.currentTotalSize, v.maxTotalSize)
	}

	return nil
}

// ValidatePixelRatio rejects images whose decoded size is out of proportion to
// their encoded size (decompression bombs). Decoded size assumes 4 bytes per pixel.
func (v *Validator) ValidatePixelRatio(fileSize int64, width, height int) error {
	if fileSize == 0 {
		slog.Error("security_pixel_validation_failed", "reason", "zero_file_size")
		return fmt.Errorf("security: file size cannot be zero")
	}
	if v.maxPixelRatio <= 0 {
		return nil
	}

	decoded := int64(width) * int64(height) * 4
	ratio := float64(decoded) / float64(fileSize)

	if ratio > v.maxPixelRatio {
		slog.Error("security_decompression_bomb_detected",
			"ratio", ratio,
			"max_ratio", v.maxPixelRatio,
			"width", width,
			"height", height,
			"file_size_kb", fileSize/1024)
		return fmt.Errorf("security: pixel ratio %.2f exceeds max %.2f (%dx%d from %d bytes)",
			ratio, v.maxPixelRatio, width, height, fileSize)
	}

	slog.Debug("security_pixel_ratio_validated", "ratio", ratio, "width", width, "height", height)
	return nil
}

// Reset resets the total size counter
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.currentTotalSize = 0
}

// GetCurrentTotalSize returns the current total exported size
func (v *Validator) GetCurrentTotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentTotalSize
}
