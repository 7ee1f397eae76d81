package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent comparison",
	Args:  cobra.NoArgs,
	RunE:  runUndo,
}

func init() {
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.engine.UndoLastComparison(ctx)
	if err != nil {
		return errors.Wrap(err, "undo failed")
	}
	if res == nil {
		fmt.Println("Nothing to undo")
		return nil
	}

	fmt.Printf("↩️  Undid comparison %d vs %d (draw: %t)\n", res.WinnerID, res.LoserID, res.WasDraw)
	return nil
}
