package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rescan every known folder and drop images that no longer exist",
	Args:  cobra.NoArgs,
	RunE:  runRescan,
}

func init() {
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.engine.Rescan(ctx)
	if err != nil {
		return errors.Wrap(err, "rescan failed")
	}

	fmt.Printf("🔄 Rescanned %d folders: %d added, %d removed\n", res.Folders, res.Added, res.Removed)
	for folder, ferr := range res.Failed {
		fmt.Printf("⚠️  %s: %v\n", folder, ferr)
	}
	return nil
}
