package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alistmirror/internal/models"
	"alistmirror/pkg/utils"
)

type RunnerOptions struct {
	RunID       string
	BaseURL     string
	RemoteRoot  string
	Destination string
	DryRun      bool
	Logger      *slog.Logger
}

// Runner drives one mirror run from the remote root into the destination root.
type Runner struct {
	walker *Walker
	opts   RunnerOptions
	logger *slog.Logger
}

func NewRunner(walker *Walker, opts RunnerOptions) *Runner {
	if opts.RemoteRoot == "" {
		opts.RemoteRoot = "/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{walker: walker, opts: opts, logger: opts.Logger}
}

// Run returns the report even when the run fails, so callers can print what
// was done before the failure.
func (r *Runner) Run(ctx context.Context) (*models.MirrorResult, error) {
	startTime := time.Now()

	r.logger.Info("mirror started",
		"base_url", r.opts.BaseURL,
		"remote_root", r.opts.RemoteRoot,
		"destination", r.opts.Destination,
		"dry_run", r.opts.DryRun)

	err := r.walker.Walk(ctx, r.opts.RemoteRoot, "")

	result := &models.MirrorResult{
		RunID:          r.opts.RunID,
		BaseURL:        r.opts.BaseURL,
		RemoteRoot:     r.opts.RemoteRoot,
		Destination:    r.opts.Destination,
		DryRun:         r.opts.DryRun,
		OperationTime:  utils.FormatTime(startTime),
		MirrorDuration: time.Since(startTime).Round(time.Millisecond).String(),
	}
	r.walker.Stats().Fill(result)

	if err != nil {
		r.logger.Error("mirror aborted", "duration", result.MirrorDuration, "error", err)
		return result, fmt.Errorf("mirror of %s failed: %w", r.opts.RemoteRoot, err)
	}

	r.logger.Info("mirror finished",
		"duration", result.MirrorDuration,
		"downloaded", result.FilesDownloaded,
		"skipped", result.FilesSkipped,
		"unresolvable", result.FilesUnresolvable,
		"failed", result.FilesFailed,
		"directories_failed", result.DirectoriesFailed,
		"transferred", result.TransferredHuman)
	return result, nil
}
