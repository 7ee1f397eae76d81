package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every image and comparison in the project",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "Confirm deletion")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear without --yes")
	}

	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.ClearAll(ctx); err != nil {
		return errors.Wrap(err, "clear failed")
	}

	fmt.Println("🧹 Cleared all images and comparisons")
	return nil
}
