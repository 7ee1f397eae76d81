// Package fsm implements the durable top-N export workflow. It freezes the
// current top-N selection, writes the files into a folder and optionally
// publishes them to S3, using the superfly/fsm library so an interrupted run
// can be resumed.
package fsm

import (
	"context"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/ranker"
	"github.com/pixelsort/imgrank/pkg/storage"
	"github.com/superfly/fsm"
)

// Publisher uploads exported files. *storage.Client satisfies it.
type Publisher interface {
	Key(parts ...string) string
	UploadFile(ctx context.Context, key, localPath string) (*storage.UploadResult, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// Machine holds the dependencies of the export workflow.
type Machine struct {
	engine     *ranker.Engine
	publisher  Publisher
	maxRetries int
}

// NewMachine creates a new export machine. publisher may be nil when runs
// never publish.
func NewMachine(engine *ranker.Engine, publisher Publisher, maxRetries int) *Machine {
	return &Machine{
		engine:     engine,
		publisher:  publisher,
		maxRetries: maxRetries,
	}
}

// Register registers the export FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ExportRequest, ExportResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ExportRequest, ExportResponse](manager, "top-export").
		Start(StateSelect, m.handleSelect).
		To(StateCopy, m.handleCopy).
		To(StatePublish, m.handlePublish).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
