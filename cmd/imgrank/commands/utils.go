package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/pixelsort/imgrank/internal/config"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/metrics"
	"github.com/pixelsort/imgrank/pkg/prefetch"
	"github.com/pixelsort/imgrank/pkg/project"
	"github.com/pixelsort/imgrank/pkg/ranker"
	"github.com/pixelsort/imgrank/pkg/security"
	"github.com/pixelsort/imgrank/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(projectsDir, fsmDBPath string) error {
	if err := os.MkdirAll(projectsDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create projects directory")
	}

	// FSM database directory (only needed for export-top)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

// loadConfig loads and validates config and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	level, _ := cfg.SlogLevel()
	LogLevel.Set(level)
	return cfg, nil
}

// session is an open project with its metrics.
type session struct {
	cfg       *config.Config
	manager   *project.Manager
	workspace *project.Workspace
	engine    *ranker.Engine
	metrics   *metrics.RankerMetrics
}

// openSession loads config and opens the configured project.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := ensureDirectories(cfg.ProjectsDir, ""); err != nil {
		return nil, err
	}

	manager, err := project.NewManager(cfg.ProjectsDir)
	if err != nil {
		return nil, errors.Wrap(err, "project manager init failed")
	}

	m, err := metrics.NewRankerMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, errors.Wrap(err, "metrics init failed")
	}

	validator := security.NewValidator(cfg.MaxImageSize, cfg.MaxExportSize, cfg.MaxPixelRatio)
	ws := project.NewWorkspace(manager,
		ranker.Options{
			PoolSize:    cfg.PoolSize,
			MaxAttempts: cfg.MaxAttempts,
			Metrics:     m,
			Validator:   validator,
		},
		prefetch.Options{
			Validator: validator,
			CacheTTL:  cfg.PrefetchCacheTTL,
		})

	engine, err := ws.Switch(cfg.Project)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}

	return &session{cfg: cfg, manager: manager, workspace: ws, engine: engine, metrics: m}, nil
}

// Close writes the metrics textfile and closes the project.
func (s *session) Close() {
	if err := s.metrics.WriteTextfile(s.cfg.MetricsFile); err != nil {
		slog.Warn("metrics_write_failed", "path", s.cfg.MetricsFile, "error", err)
	}
	if err := s.workspace.Close(); err != nil {
		slog.Warn("workspace_close_failed", "error", err)
	}
}

// publisher returns an S3 client when a bucket is configured, else nil.
func (s *session) publisher(ctx context.Context) (*storage.Client, error) {
	if !s.cfg.PublishEnabled() {
		return nil, nil
	}
	client, err := storage.NewClient(ctx, s.cfg.S3Bucket, s.cfg.S3Region, s.cfg.S3Prefix)
	if err != nil {
		return nil, errors.Wrap(err, "S3 client failed")
	}
	return client, nil
}
