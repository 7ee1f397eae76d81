package fsm

// ExportRequest is the FSM input
type ExportRequest struct {
	RunID   string
	N       int
	DestDir string
	// Mode is "copy" or "symlink".
	Mode string
	// Publish uploads the written files to S3 under the run id.
	Publish bool
}

// SelectedImage is one image chosen for export, frozen at selection time so
// retries export the same set even if rankings move.
type SelectedImage struct {
	ImageID  int64
	Filepath string
	Filename string
	Rank     int
}

// ExportResponse is the FSM output (accumulated across transitions)
type ExportResponse struct {
	// From Select
	Selected []SelectedImage

	// From Copy
	Written []string
	Skipped []string
	Failed  []string

	// From Publish
	Uploaded []string

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateSelect   = "select"
	StateCopy     = "copy"
	StatePublish  = "publish"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Final statuses
const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)
