package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/pixelsort/imgrank/pkg/prefetch"
	"github.com/pixelsort/imgrank/pkg/ranker"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare image pairs interactively",
	Long: `Shows two images at a time and records which one is better.
  l  left wins      r  right wins     d  draw
  s  skip pair      u  undo last      q  quit
The next pair is loaded in the background while you decide.`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	pf, err := s.workspace.Prefetcher()
	if err != nil {
		return err
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		res, err := pf.Next(ctx)
		if errors.Is(err, errors.ErrNoPairAvailable) {
			fmt.Println("Not enough images to compare. Scan a folder first.")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to load pair")
		}

		fmt.Println()
		printLoaded("L", res.Left)
		printLoaded("R", res.Right)

		quit, err := promptOutcome(ctx, s.engine, in, res)
		if err != nil {
			return err
		}
		if quit {
			break
		}
	}

	fmt.Printf("👋 %d comparisons this session (prefetch hits %d, misses %d)\n",
		s.engine.SessionComparisons(), pf.Hits(), pf.Misses())
	return nil
}

// promptOutcome reads answers until one settles the pair. It reports quit on
// "q" or end of input.
func promptOutcome(ctx context.Context, engine *ranker.Engine, in *bufio.Scanner, res *prefetch.Result) (bool, error) {
	left, right := res.Left.Image, res.Right.Image
	for {
		fmt.Print("[l]eft / [r]ight / [d]raw / [s]kip / [u]ndo / [q]uit > ")
		if !in.Scan() {
			return true, in.Err()
		}

		switch strings.ToLower(strings.TrimSpace(in.Text())) {
		case "l", "left":
			return false, record(ctx, engine, left.ID, right.ID, false)
		case "r", "right":
			return false, record(ctx, engine, right.ID, left.ID, false)
		case "d", "draw":
			return false, record(ctx, engine, left.ID, right.ID, true)
		case "s", "skip":
			return false, nil
		case "u", "undo":
			undone, err := engine.UndoLastComparison(ctx)
			if err != nil {
				return false, errors.Wrap(err, "undo failed")
			}
			if undone == nil {
				fmt.Println("Nothing to undo")
			} else {
				fmt.Printf("↩️  Undid %d vs %d\n", undone.WinnerID, undone.LoserID)
			}
		case "q", "quit":
			return true, nil
		default:
			fmt.Println("Unknown choice")
		}
	}
}

func record(ctx context.Context, engine *ranker.Engine, winnerID, loserID int64, draw bool) error {
	if err := engine.RecordComparison(ctx, winnerID, loserID, draw); err != nil {
		return errors.Wrap(err, "record failed")
	}
	return nil
}

func printLoaded(side string, l *prefetch.Loaded) {
	img := l.Image
	fmt.Printf("%s: #%-6d %-40s %4dx%-5d %-5s mu %.2f sigma %.2f (%d comparisons)\n",
		side, img.ID, img.Filename, l.Config.Width, l.Config.Height, l.Format,
		img.Mu, img.Sigma, img.ComparisonCount)
	fmt.Printf("   %s\n", img.Filepath)
}
