package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove images whose files are missing and replay their comparisons",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	removed, err := s.engine.RemoveMissingImages(ctx)
	if err != nil {
		return errors.Wrap(err, "prune failed")
	}

	if removed == 0 {
		fmt.Println("✅ No missing images")
		return nil
	}
	fmt.Printf("🧹 Removed %d missing images\n", removed)
	return nil
}
