package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"alistmirror/internal/alist"
	"alistmirror/internal/models"
	"alistmirror/internal/transfer"
)

type Lister interface {
	List(ctx context.Context, remotePath string) ([]models.RemoteEntry, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, target models.TransferTarget) (transfer.Result, error)
}

type DirMaker interface {
	EnsureDir(ctx context.Context, dir string) error
}

type WalkerOptions struct {
	// Delay is the pause after every file, whatever its outcome.
	// Default: none
	Delay time.Duration

	// Workers above 1 moves file transfers onto a bounded pool. Listing
	// stays sequential and depth first.
	Workers int

	Filter *Filter
	DryRun bool
	Logger *slog.Logger
}

type Walker struct {
	lister  Lister
	fetcher Fetcher
	dirs    DirMaker
	delay   time.Duration
	workers int
	filter  *Filter
	dryRun  bool
	stats   *Stats
	logger  *slog.Logger

	root string
	pool *pool.Pool
}

func NewWalker(lister Lister, fetcher Fetcher, dirs DirMaker, opts WalkerOptions) *Walker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Walker{
		lister:  lister,
		fetcher: fetcher,
		dirs:    dirs,
		delay:   opts.Delay,
		workers: opts.Workers,
		filter:  opts.Filter,
		dryRun:  opts.DryRun,
		stats:   &Stats{},
		logger:  opts.Logger,
	}
}

func (w *Walker) Stats() *Stats {
	return w.stats
}

// Walk mirrors remotePath into localDir. Failures below the top directory are
// logged and recorded; only a failure of remotePath itself, or cancellation,
// is returned.
func (w *Walker) Walk(ctx context.Context, remotePath, localDir string) error {
	w.root = strings.TrimSuffix(remotePath, "/")
	if w.workers > 1 {
		w.pool = pool.New().WithMaxGoroutines(w.workers)
		defer func() {
			w.pool.Wait()
			w.pool = nil
		}()
	}
	return w.walk(ctx, remotePath, localDir)
}

func (w *Walker) walk(ctx context.Context, remotePath, localDir string) error {
	if !w.dryRun {
		if err := w.dirs.EnsureDir(ctx, localDir); err != nil {
			w.logger.Error("failed to create local directory", "path", remotePath, "local", localDir, "error", err)
			w.stats.dirFailed(remotePath, "local", err)
			return fmt.Errorf("failed to create local directory for %s: %w", remotePath, err)
		}
	}

	w.logger.Info("entering directory", "path", remotePath)
	entries, err := w.lister.List(ctx, remotePath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logFailure("failed to list directory", remotePath, err)
		w.stats.dirFailed(remotePath, alist.Classify(err), err)
		return err
	}
	w.stats.dirsListed.Add(1)

	if len(entries) == 0 {
		w.logger.Info("empty directory", "path", remotePath)
		return nil
	}
	w.logger.Debug("listed directory", "path", remotePath, "entries", len(entries))

	base := strings.TrimSuffix(remotePath, "/")
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		childRemote := base + "/" + entry.Name
		if err := validateName(entry.Name); err != nil {
			w.logger.Error("skipping entry", "path", childRemote, "error", err)
			w.stats.fileFailed(childRemote, "invalid", err)
			continue
		}
		rel := w.relative(childRemote)

		if entry.IsDir {
			if w.filter.ExcludesDir(rel) {
				w.logger.Debug("directory excluded", "path", childRemote)
				w.stats.filtered.Add(1)
				continue
			}
			childLocal := path.Join(localDir, localSegment(entry.Name))
			if err := w.walk(ctx, childRemote, childLocal); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if !w.filter.IncludesFile(rel) {
			w.logger.Debug("file excluded", "path", childRemote)
			w.stats.filtered.Add(1)
			continue
		}

		target := models.TransferTarget{
			RemotePath:     childRemote,
			LocalDirectory: localDir,
			FileName:       localSegment(entry.Name),
		}
		if w.pool != nil {
			w.pool.Go(func() {
				w.fetch(ctx, target)
				w.pause(ctx)
			})
			continue
		}
		w.fetch(ctx, target)
		if err := w.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) fetch(ctx context.Context, target models.TransferTarget) {
	result, err := w.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logFailure("failed to fetch file", target.RemotePath, err)
		w.stats.fileFailed(target.RemotePath, alist.Classify(err), err)
		return
	}

	switch result.Outcome {
	case transfer.SkippedComplete:
		w.stats.skipped.Add(1)
		w.logger.Info("already complete", "path", target.RemotePath, "size", result.ExpectedSize)
	case transfer.SkippedUnresolvable:
		w.stats.unresolvable.Add(1)
		w.logger.Warn("no download url, skipping", "path", target.RemotePath)
	case transfer.WouldDownload:
		w.logger.Info("would download", "path", target.RemotePath, "local", result.LocalPath, "size", result.ExpectedSize, "resume", result.Resumed)
	case transfer.Downloaded:
		w.stats.downloaded.Add(1)
		w.stats.bytes.Add(result.BytesWritten)
		if result.Resumed {
			w.stats.resumed.Add(1)
		}
		w.logger.Info("downloaded", "path", target.RemotePath, "local", result.LocalPath, "bytes", result.BytesWritten, "resumed", result.Resumed)
	}

	if result.Warning != nil {
		w.stats.mismatches.Add(1)
		w.logger.Warn("size mismatch", "path", target.RemotePath, "expected", result.Warning.Expected, "actual", result.Warning.Actual)
	}
}

func (w *Walker) logFailure(msg, remotePath string, err error) {
	var authErr *alist.AuthError
	var protocolErr *alist.ProtocolError
	var transportErr *alist.TransportError

	switch {
	case errors.As(err, &authErr):
		w.logger.Error(msg, "path", remotePath, "kind", "auth", "hint", "password required or incorrect", "error", err)
	case errors.As(err, &protocolErr):
		w.logger.Error(msg, "path", remotePath, "kind", "protocol", "status", protocolErr.HTTPStatus, "code", protocolErr.Code, "error", err)
	case errors.As(err, &transportErr):
		w.logger.Error(msg, "path", remotePath, "kind", "transport", "error", err)
	default:
		w.logger.Error(msg, "path", remotePath, "kind", "unexpected", "error", err)
	}
}

func (w *Walker) pause(ctx context.Context) error {
	if w.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(w.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Walker) relative(remotePath string) string {
	return strings.TrimPrefix(strings.TrimPrefix(remotePath, w.root), "/")
}

func validateName(name string) error {
	switch name {
	case "":
		return errors.New("entry has an empty name")
	case ".", "..":
		return fmt.Errorf("entry name %q is not a valid path segment", name)
	}
	return nil
}

// localSegment keeps a remote name as a single local path segment.
func localSegment(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}
