package commands

import (
	"context"
	"fmt"

	"github.com/pixelsort/imgrank/pkg/errors"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ranking progress",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.engine.Stats(ctx)
	if err != nil {
		return errors.Wrap(err, "stats failed")
	}

	fmt.Printf("📊 Project: %s\n", s.workspace.Name())
	fmt.Printf("   Images:        %d (%d compared, %d not yet)\n", st.TotalImages, st.ComparedImages, st.UncomparedImages)
	fmt.Printf("   Comparisons:   %d (%.2f per image)\n", st.TotalComparisons, st.AvgComparisonsPerImage)
	fmt.Printf("   Coverage:      0: %d | 1-3: %d | 4-10: %d | 10+: %d\n",
		st.ZeroComparisons, st.OneToThree, st.FourToTen, st.OverTen)
	fmt.Printf("   Sigma:         avg %.3f (min %.3f, max %.3f)\n", st.AvgSigma, st.MinSigma, st.MaxSigma)
	fmt.Printf("   Mu:            avg %.3f (min %.3f, max %.3f)\n", st.AvgMu, st.MinMu, st.MaxMu)
	fmt.Printf("   Top ordinal:   %.3f\n", st.TopOrdinal)
	fmt.Printf("   Stability:     %.1f%%\n", st.StabilityPercent)
	fmt.Printf("   Progress:      basic %.1f%% | confident %.1f%%\n", st.BasicProgressPercent, st.ConfidentProgressPercent)
	fmt.Printf("   Remaining:     basic %d | confident %d | high confidence %d\n",
		st.ComparisonsForBasic, st.ComparisonsForConfident, st.ComparisonsForHighConfidence)
	return nil
}
