package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var recordDraw bool

var recordCmd = &cobra.Command{
	Use:   "record <winner-id> <loser-id>",
	Short: "Record one comparison outcome",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().BoolVar(&recordDraw, "draw", false, "Record a draw")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	winnerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return errors.Wrap(err, "invalid winner id")
	}
	loserID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.Wrap(err, "invalid loser id")
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.engine.RecordComparison(ctx, winnerID, loserID, recordDraw); err != nil {
		return errors.Wrap(err, "record failed")
	}

	if recordDraw {
		fmt.Printf("🤝 Draw recorded: %d = %d\n", winnerID, loserID)
	} else {
		fmt.Printf("✅ Recorded: %d beats %d\n", winnerID, loserID)
	}
	return nil
}
