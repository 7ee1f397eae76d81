package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var scanRecursive bool

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Add the images in a folder to the project",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVarP(&scanRecursive, "recursive", "r", false, "Include subfolders")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.engine.Scan(ctx, args[0], scanRecursive)
	if err != nil {
		return errors.Wrap(err, "scan failed")
	}

	fmt.Printf("📂 Scanned %s\n", args[0])
	fmt.Printf("   Added:    %d\n", res.Added)
	fmt.Printf("   Existing: %d\n", res.Existing)
	fmt.Printf("   Total:    %d\n", res.Total)
	return nil
}
