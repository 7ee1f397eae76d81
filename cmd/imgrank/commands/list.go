package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/db"
	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	listOrder string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List images with their ratings",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listOrder, "order", string(db.OrderByOrdinal), "Sort by ordinal, mu, sigma, comparison_count or added_at")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most this many images (0 for all)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	images, err := s.engine.Repository().List(ctx, db.OrderBy(listOrder))
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(images) == 0 {
		fmt.Println("No images found")
		return nil
	}
	if listLimit > 0 && len(images) > listLimit {
		images = images[:listLimit]
	}

	fmt.Printf("%-6s %-8s %-40s %-9s %-9s %-9s %-6s\n", "RANK", "ID", "FILENAME", "MU", "SIGMA", "ORDINAL", "COMP")
	fmt.Println("------------------------------------------------------------------------------------------------")

	for i, img := range images {
		fmt.Printf("%-6d %-8d %-40s %-9.3f %-9.3f %-9.3f %-6d\n",
			i+1, img.ID, img.Filename, img.Mu, img.Sigma, img.Ordinal(), img.ComparisonCount)
	}

	return nil
}
