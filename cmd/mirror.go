package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"alistmirror/config"
	"alistmirror/internal/alist"
	"alistmirror/internal/mirror"
	"alistmirror/internal/models"
	"alistmirror/internal/storage"
	"alistmirror/internal/transfer"
	"alistmirror/pkg/utils"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror the remote tree into the destination",
	Long: `Walk the remote tree depth first and copy every resolvable file into the
destination, keeping the directory layout.

A file is skipped when a local copy of the same size exists. A shorter local
copy is resumed with a Range request. Files without a download url are skipped
and reported. A failing subdirectory is logged and the walk continues with its
siblings; only a failure to list the remote root stops the run.

The destination can be a local directory or s3://bucket/prefix. S3 objects are
always written whole.

Examples:
  alistmirror mirror --base-url https://share.example.com -d ./mirror
  alistmirror mirror -r /movies --include "**/*.mkv" --exclude "**/samples/**"
  alistmirror mirror -d s3://backups/share --workers 4
  alistmirror mirror --dry-run -o yaml
  alistmirror mirror -d ./mirror --archive`,
	RunE: runMirror,
}

func init() {
	addMirrorFlags(mirrorCmd.Flags())
}

func addMirrorFlags(flags *pflag.FlagSet) {
	flags.String("base-url", "", "Override the server base url")
	flags.String("password", "", "Folder password sent with every metadata request")
	flags.String("token", "", "Authorization token")
	flags.StringP("remote-root", "r", "", "Remote directory to start from")
	flags.IntP("workers", "w", 0, "Concurrent file transfers")
	flags.Duration("delay", 0, "Pause after every file")
	flags.Int("chunk-size", 0, "Read buffer size in bytes")
	flags.Duration("timeout", 0, "Metadata request timeout")
	flags.Bool("dry-run", false, "List what would be downloaded without writing anything")
	flags.StringSlice("include", nil, "Only mirror files matching these glob patterns")
	flags.StringSlice("exclude", nil, "Skip files and directories matching these glob patterns")
	flags.Bool("archive", false, "Zip the destination directory after the run")
}

// applyMirrorFlags copies explicitly set flags over the loaded config.
func applyMirrorFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		c.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("password") {
		c.Password, _ = flags.GetString("password")
	}
	if flags.Changed("token") {
		c.Token, _ = flags.GetString("token")
	}
	if flags.Changed("remote-root") {
		c.RemoteRoot, _ = flags.GetString("remote-root")
	}
	if flags.Changed("workers") {
		c.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("delay") {
		c.FileDelay, _ = flags.GetDuration("delay")
	}
	if flags.Changed("chunk-size") {
		c.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("timeout") {
		c.RequestTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("include") {
		c.Include, _ = flags.GetStringSlice("include")
	}
	if flags.Changed("exclude") {
		c.Exclude, _ = flags.GetStringSlice("exclude")
	}
	if flags.Changed("destination") {
		c.Destination, _ = flags.GetString("destination")
	}
}

func runMirror(cmd *cobra.Command, args []string) error {
	applyMirrorFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		utils.PrintError(err, "mirror")
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	withArchive, _ := cmd.Flags().GetBool("archive")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := executeMirror(ctx, cfg, dryRun, slog.Default())
	if err != nil && result == nil {
		utils.PrintError(err, "mirror")
		return err
	}

	if err == nil && withArchive && !dryRun {
		archive, archiveErr := archiveDestination(cfg.Destination)
		if archiveErr != nil {
			slog.Error("failed to archive destination", "destination", cfg.Destination, "error", archiveErr)
		}
		result.Archive = archive
	}

	if printErr := utils.PrintOutput(result, getOutputFormat(cmd)); printErr != nil {
		slog.Error("failed to print result", "error", printErr)
	}
	if err != nil {
		utils.PrintError(err, "mirror")
		return err
	}
	return nil
}

// executeMirror wires client, store, engine and walker for one run.
func executeMirror(ctx context.Context, c *config.Config, dryRun bool, logger *slog.Logger) (*models.MirrorResult, error) {
	store, err := storage.Open(ctx, c.Destination, c.S3)
	if err != nil {
		return nil, fmt.Errorf("failed to open destination %s: %w", c.Destination, err)
	}

	filter, err := mirror.NewFilter(c.Include, c.Exclude)
	if err != nil {
		return nil, err
	}

	opts := alist.DefaultOptions()
	opts.BaseURL = c.BaseURL
	opts.Password = c.Password
	opts.Token = c.Token
	opts.UserAgent = c.UserAgent
	opts.AcceptLanguage = c.AcceptLanguage
	opts.Timeout = c.RequestTimeout
	opts.RetryAttempts = c.RetryAttempts
	opts.Logger = logger
	client := alist.NewClient(opts)

	engine := transfer.NewEngine(client, store, transfer.Options{
		ChunkSize:       c.ChunkSize,
		DownloadTimeout: c.DownloadTimeout,
		Headers:         client.Headers(),
		DryRun:          dryRun,
		Logger:          logger,
	})
	walker := mirror.NewWalker(client, engine, store, mirror.WalkerOptions{
		Delay:   c.FileDelay,
		Workers: c.Workers,
		Filter:  filter,
		DryRun:  dryRun,
		Logger:  logger,
	})
	runner := mirror.NewRunner(walker, mirror.RunnerOptions{
		RunID:       runID,
		BaseURL:     c.BaseURL,
		RemoteRoot:  c.RemoteRoot,
		Destination: store.Describe(),
		DryRun:      dryRun,
		Logger:      logger,
	})
	return runner.Run(ctx)
}

// archiveDestination zips a local destination next to itself.
func archiveDestination(destination string) (*models.ArchiveInfo, error) {
	if strings.HasPrefix(destination, "s3://") {
		return nil, fmt.Errorf("archive is only supported for local destinations, got %s", destination)
	}
	store, err := storage.NewLocalStore(destination)
	if err != nil {
		return nil, err
	}
	root := store.Root()
	output := filepath.Join(filepath.Dir(root), utils.GenerateArchiveName(root, ".zip"))
	return utils.CreateArchive(root, output)
}
