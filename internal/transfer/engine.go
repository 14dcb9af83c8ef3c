package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alistmirror/internal/alist"
	"alistmirror/internal/models"
	"alistmirror/internal/storage"
)

const DefaultChunkSize = 80 * 1024

type Resolver interface {
	Resolve(ctx context.Context, remotePath string) (models.RemoteFileMetadata, error)
}

type Outcome int

const (
	Downloaded Outcome = iota
	SkippedComplete
	SkippedUnresolvable
	WouldDownload
)

func (o Outcome) String() string {
	switch o {
	case Downloaded:
		return "downloaded"
	case SkippedComplete:
		return "skipped_complete"
	case SkippedUnresolvable:
		return "skipped_unresolvable"
	case WouldDownload:
		return "would_download"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome      Outcome
	LocalPath    string
	ExpectedSize int64
	FinalSize    int64
	BytesWritten int64
	Resumed      bool
	RangeIgnored bool
	Warning      *IntegrityWarning
}

// IntegrityWarning reports a finished transfer whose size differs from the
// size the remote announced. The file is kept as written.
type IntegrityWarning struct {
	Path     string
	Expected int64
	Actual   int64
}

func (w *IntegrityWarning) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected %d bytes, got %d", w.Path, w.Expected, w.Actual)
}

type Options struct {
	// ChunkSize is the read buffer used while streaming a body.
	// Default: 80 KiB
	ChunkSize int

	// DownloadTimeout bounds the wait for response headers of a content
	// request. The body itself may take as long as it needs.
	// Default: 30s
	DownloadTimeout time.Duration

	// Headers are added to every content request.
	Headers    http.Header
	HTTPClient *http.Client
	DryRun     bool
	Logger     *slog.Logger
}

type Engine struct {
	resolver  Resolver
	store     storage.Store
	client    *http.Client
	headers   http.Header
	chunkSize int
	dryRun    bool
	logger    *slog.Logger
}

func NewEngine(resolver Resolver, store storage.Store, opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: opts.DownloadTimeout,
				DisableCompression:    true,
			},
		}
	}

	return &Engine{
		resolver:  resolver,
		store:     store,
		client:    client,
		headers:   opts.Headers,
		chunkSize: opts.ChunkSize,
		dryRun:    opts.DryRun,
		logger:    opts.Logger,
	}
}

// Fetch brings one remote file up to date in the store. Skips are reported
// through Result.Outcome, failures through the error.
func (e *Engine) Fetch(ctx context.Context, target models.TransferTarget) (Result, error) {
	result := Result{LocalPath: target.LocalPath()}

	meta, err := e.resolver.Resolve(ctx, target.RemotePath)
	if err != nil {
		return result, err
	}
	if !meta.Resolvable() {
		result.Outcome = SkippedUnresolvable
		return result, nil
	}
	result.ExpectedSize = meta.Size

	localSize, exists, err := e.store.Size(ctx, result.LocalPath)
	if err != nil {
		return result, fmt.Errorf("failed to inspect %s: %w", result.LocalPath, err)
	}

	if exists && localSize == meta.Size {
		result.Outcome = SkippedComplete
		result.FinalSize = localSize
		return result, nil
	}

	// A local file larger than the remote cannot be a prefix of it.
	offset := localSize
	if localSize > meta.Size || !e.store.SupportsAppend() {
		offset = 0
	}

	if e.dryRun {
		result.Outcome = WouldDownload
		result.Resumed = offset > 0
		return result, nil
	}

	if err := e.download(ctx, target, meta, offset, &result); err != nil {
		return result, err
	}

	finalSize, _, err := e.store.Size(ctx, result.LocalPath)
	if err != nil {
		return result, fmt.Errorf("failed to inspect %s after transfer: %w", result.LocalPath, err)
	}
	result.FinalSize = finalSize
	if finalSize != meta.Size {
		result.Warning = &IntegrityWarning{Path: result.LocalPath, Expected: meta.Size, Actual: finalSize}
	}
	result.Outcome = Downloaded
	return result, nil
}

func (e *Engine) download(ctx context.Context, target models.TransferTarget, meta models.RemoteFileMetadata, offset int64, result *Result) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.DownloadURL, nil)
	if err != nil {
		return &alist.ProtocolError{Op: "download", Path: target.RemotePath, Err: fmt.Errorf("invalid download url: %w", err)}
	}
	for key, values := range e.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &alist.TransportError{Op: "download", Path: target.RemotePath, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if start, ok := parseContentRangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
			return &alist.ProtocolError{
				Op:         "download",
				Path:       target.RemotePath,
				HTTPStatus: resp.StatusCode,
				Message:    fmt.Sprintf("content range starts at %d, requested %d", start, offset),
			}
		}
		result.Resumed = offset > 0
	case http.StatusOK:
		if offset > 0 {
			e.logger.Warn("range ignored, restarting from zero", "path", target.RemotePath, "local_size", offset)
			result.RangeIgnored = true
			offset = 0
		}
	default:
		return &alist.ProtocolError{
			Op:         "download",
			Path:       target.RemotePath,
			HTTPStatus: resp.StatusCode,
			Message:    resp.Status,
		}
	}

	w, err := e.store.Create(ctx, result.LocalPath, offset)
	if err != nil {
		return fmt.Errorf("failed to open %s for writing: %w", result.LocalPath, err)
	}

	written, err := e.stream(w, resp.Body)
	result.BytesWritten = written
	if err != nil {
		abort(w, err)
		var writeErr *writeError
		if errors.As(err, &writeErr) {
			return fmt.Errorf("failed to write %s: %w", result.LocalPath, writeErr.err)
		}
		return &alist.TransportError{Op: "download", Path: target.RemotePath, Err: err}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", result.LocalPath, err)
	}
	return nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }

// stream copies body into w one chunk at a time.
func (e *Engine) stream(w io.Writer, body io.Reader) (int64, error) {
	buf := make([]byte, e.chunkSize)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, &writeError{err: err}
			}
			written += int64(n)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func abort(w io.WriteCloser, cause error) {
	if a, ok := w.(interface{ Abort(error) error }); ok {
		a.Abort(cause)
		return
	}
	w.Close()
}

// parseContentRangeStart reads the first byte position of a
// "bytes start-end/total" header.
func parseContentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
