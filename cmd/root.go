package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"alistmirror/config"
)

var (
	cfg   *config.Config
	runID string
)

var rootCmd = &cobra.Command{
	Use:   "alistmirror",
	Short: "Mirror an AList file share to local or S3 storage",
	Long: `alistmirror walks the directory tree of an AList compatible file server and
copies every file it can resolve into a destination directory or S3 bucket.

Files already present with the right size are skipped and partial files are
resumed, so an interrupted mirror can simply be started again.
Configuration is loaded from a .env file, environment variables or --config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		runID = uuid.NewString()
		handler, err := newLogHandler(cmd)
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(handler).With("run_id", runID))
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(statCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringP("destination", "d", "", "Override destination from config (directory or s3://bucket/prefix)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().StringP("output", "o", "json", "Report format: json or yaml")
}

func newLogHandler(cmd *cobra.Command) (slog.Handler, error) {
	level := slog.LevelInfo
	if isVerbose(cmd) {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	format, _ := cmd.Flags().GetString("log-format")
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(os.Stderr, opts), nil
	case "json":
		return slog.NewJSONHandler(os.Stderr, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

func getDestination(cmd *cobra.Command) string {
	destination, _ := cmd.Flags().GetString("destination")
	if destination != "" {
		return destination
	}
	return cfg.Destination
}

func getOutputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	return format
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}
