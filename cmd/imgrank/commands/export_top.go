package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pixelsort/imgrank/pkg/errors"
	appfsm "github.com/pixelsort/imgrank/pkg/fsm"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var (
	exportTopMode    string
	exportTopPublish bool
)

var exportTopCmd = &cobra.Command{
	Use:   "export-top <n> <dest-folder>",
	Short: "Copy or link the top N images into a folder, optionally publishing them to S3",
	Args:  cobra.ExactArgs(2),
	RunE:  runExportTop,
}

func init() {
	rootCmd.AddCommand(exportTopCmd)
	exportTopCmd.Flags().StringVar(&exportTopMode, "mode", "copy", "copy or symlink")
	exportTopCmd.Flags().BoolVar(&exportTopPublish, "publish", false, "Upload the exported files to S3")
}

func runExportTop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return fmt.Errorf("n must be a positive integer, got %q", args[0])
	}
	destDir := args[1]

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := ensureDirectories(s.cfg.ProjectsDir, s.cfg.FSMDBPath); err != nil {
		return err
	}

	var publisher appfsm.Publisher
	if exportTopPublish {
		client, err := s.publisher(ctx)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("--publish needs an S3 bucket (set --s3-bucket or IMGRANK_S3_BUCKET)")
		}
		publisher = client
	}

	manager, err := fsm.New(fsm.Config{DBPath: s.cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(s.engine, publisher, s.cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	runID := uuid.NewString()
	req := &appfsm.ExportRequest{
		RunID:   runID,
		N:       n,
		DestDir: destDir,
		Mode:    exportTopMode,
		Publish: exportTopPublish,
	}
	resp := &appfsm.ExportResponse{}

	version, err := start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm started", "run_id", runID, "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "FSM execution failed")
	}

	slog.Info("export-top completed", "run_id", runID, "status", resp.Status)

	fmt.Printf("📦 Exported %d of top %d to %s (%s)\n", len(resp.Written), n, destDir, exportTopMode)
	for _, path := range resp.Skipped {
		fmt.Printf("   skipped missing: %s\n", path)
	}
	for _, path := range resp.Failed {
		fmt.Printf("   ❌ failed: %s\n", path)
	}
	if len(resp.Uploaded) > 0 {
		fmt.Printf("☁️  Published %d files under %s\n", len(resp.Uploaded), runID)
	}
	if resp.Status == appfsm.StatusPartial {
		return fmt.Errorf("export incomplete: %s", resp.ErrorMessage)
	}
	return nil
}
