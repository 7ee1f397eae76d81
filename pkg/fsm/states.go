package fsm

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/ranker"
	"github.com/superfly/fsm"
)

var errNoResponse = errors.New("response not initialized")

// retryOrAbort returns err for another attempt, or aborts the run once the
// retry budget is spent.
func (m *Machine) retryOrAbort(ctx context.Context, err error, msg string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("fsm_retries_exhausted", "retries", retryCount, "error", err)
		return fsm.Abort(errors.Wrap(err, msg))
	}
	return errors.Wrap(err, msg)
}

func (m *Machine) handleSelect(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	slog.Info("fsm_state_select", "run_id", req.Msg.RunID, "n", req.Msg.N)
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(errNoResponse)
	}

	if req.Msg.N <= 0 {
		return nil, fsm.Abort(errors.New("n must be positive"))
	}
	if req.Msg.DestDir == "" {
		return nil, fsm.Abort(errors.New("destination folder is required"))
	}
	if _, err := ranker.ParseExportMode(req.Msg.Mode); err != nil {
		return nil, fsm.Abort(err)
	}

	// A resumed run keeps the selection it already made.
	if len(resp.Selected) > 0 {
		slog.Info("selection_already_frozen", "run_id", req.Msg.RunID, "count", len(resp.Selected))
		return fsm.NewResponse(resp), nil
	}

	top, err := m.engine.Repository().Top(ctx, req.Msg.N)
	if err != nil {
		return nil, m.retryOrAbort(ctx, err, "failed to select top images")
	}

	resp.Selected = make([]SelectedImage, 0, len(top))
	for i, img := range top {
		resp.Selected = append(resp.Selected, SelectedImage{
			ImageID:  img.ID,
			Filepath: img.Filepath,
			Filename: img.Filename,
			Rank:     i + 1,
		})
	}

	slog.Info("selection_frozen", "run_id", req.Msg.RunID, "count", len(resp.Selected))
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleCopy(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	slog.Info("fsm_state_copy", "run_id", req.Msg.RunID, "dest_dir", req.Msg.DestDir)
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(errNoResponse)
	}

	mode, err := ranker.ParseExportMode(req.Msg.Mode)
	if err != nil {
		return nil, fsm.Abort(err)
	}

	images := make([]*db.Image, 0, len(resp.Selected))
	for _, s := range resp.Selected {
		images = append(images, &db.Image{ID: s.ImageID, Filepath: s.Filepath, Filename: s.Filename})
	}

	res, err := m.engine.ExportImages(ctx, images, req.Msg.DestDir, mode)
	var partial *errors.ExportPartialFailure
	switch {
	case errors.As(err, &partial):
		resp.Failed = resp.Failed[:0]
		for _, f := range partial.Failures {
			resp.Failed = append(resp.Failed, f.Source)
		}
	case err != nil:
		return nil, m.retryOrAbort(ctx, err, "failed to export images")
	default:
		resp.Failed = nil
	}

	resp.Written = res.Written
	resp.Skipped = res.Skipped

	slog.Info("copy_complete",
		"run_id", req.Msg.RunID,
		"written", len(resp.Written),
		"skipped", len(resp.Skipped),
		"failed", len(resp.Failed))

	return fsm.NewResponse(resp), nil
}

func (m *Machine) handlePublish(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(errNoResponse)
	}

	if !req.Msg.Publish {
		slog.Info("fsm_state_publish_skipped", "run_id", req.Msg.RunID)
		return fsm.NewResponse(resp), nil
	}
	if m.publisher == nil {
		return nil, fsm.Abort(errors.New("publishing requested but no S3 bucket is configured"))
	}

	slog.Info("fsm_state_publish", "run_id", req.Msg.RunID, "file_count", len(resp.Written))

	// Objects from an earlier attempt are not uploaded again.
	existing, err := m.publisher.ListObjects(ctx, m.publisher.Key(req.Msg.RunID)+"/")
	if err != nil {
		return nil, m.retryOrAbort(ctx, err, "failed to list published objects")
	}
	published := make(map[string]bool, len(existing))
	for _, key := range existing {
		published[key] = true
	}

	resp.Uploaded = resp.Uploaded[:0]
	for _, path := range resp.Written {
		key := m.publisher.Key(req.Msg.RunID, filepath.Base(path))
		if !published[key] {
			if _, err := m.publisher.UploadFile(ctx, key, path); err != nil {
				return nil, m.retryOrAbort(ctx, err, "failed to publish export")
			}
			published[key] = true
		}
		resp.Uploaded = append(resp.Uploaded, key)
	}

	slog.Info("publish_complete", "run_id", req.Msg.RunID, "uploaded", len(resp.Uploaded))
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[ExportRequest, ExportResponse]) (*fsm.Response[ExportResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(errNoResponse)
	}

	resp.Status = StatusComplete
	if len(resp.Failed) > 0 {
		resp.Status = StatusPartial
		resp.ErrorMessage = "some files could not be exported"
	}

	slog.Info("fsm_state_complete",
		"run_id", req.Msg.RunID,
		"status", resp.Status,
		"written", len(resp.Written),
		"uploaded", len(resp.Uploaded))

	return fsm.NewResponse(resp), nil
}
