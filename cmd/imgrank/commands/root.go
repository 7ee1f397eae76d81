package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LogLevel is the level of the default slog handler.
var LogLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:   "imgrank",
	Short: "Rank a photo collection by pairwise comparison",
	Long: `Ranks local images by asking which of two is better, keeping a Bayesian
skill estimate per image in a per-project SQLite store.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("projects-dir", ".imgrank", "Directory holding project stores")
	rootCmd.PersistentFlags().StringP("project", "p", "", "Project name (empty for the unsaved project)")
	rootCmd.PersistentFlags().String("fsm-db-path", ".imgrank/fsm", "FSM BoltDB directory")
	rootCmd.PersistentFlags().Int("pool-size", 500, "Candidate pool size for pairing")
	rootCmd.PersistentFlags().Int("max-attempts", 20, "Random pair attempts before falling back")
	rootCmd.PersistentFlags().Int64("max-image-size", 200*1024*1024, "Max image file size in bytes (0 disables)")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket for publishing exports")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("s3-prefix", "imgrank", "S3 key prefix")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this textfile on exit")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("projects-dir", rootCmd.PersistentFlags().Lookup("projects-dir"))
	viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("pool-size", rootCmd.PersistentFlags().Lookup("pool-size"))
	viper.BindPFlag("max-attempts", rootCmd.PersistentFlags().Lookup("max-attempts"))
	viper.BindPFlag("max-image-size", rootCmd.PersistentFlags().Lookup("max-image-size"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("s3-prefix", rootCmd.PersistentFlags().Lookup("s3-prefix"))
	viper.BindPFlag("metrics-file", rootCmd.PersistentFlags().Lookup("metrics-file"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
