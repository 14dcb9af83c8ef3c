package mirror

import (
	"sync"
	"sync/atomic"

	"alistmirror/internal/models"
	"alistmirror/pkg/utils"
)

// Stats collects run counters. Safe for concurrent use by transfer workers.
type Stats struct {
	dirsListed   atomic.Int64
	dirsFailed   atomic.Int64
	downloaded   atomic.Int64
	resumed      atomic.Int64
	skipped      atomic.Int64
	unresolvable atomic.Int64
	filtered     atomic.Int64
	failed       atomic.Int64
	mismatches   atomic.Int64
	bytes        atomic.Int64

	mu       sync.Mutex
	failures []models.FailureRecord
}

func (s *Stats) recordFailure(path, kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, models.FailureRecord{Path: path, Kind: kind, Error: err.Error()})
}

func (s *Stats) dirFailed(path, kind string, err error) {
	s.dirsFailed.Add(1)
	s.recordFailure(path, kind, err)
}

func (s *Stats) fileFailed(path, kind string, err error) {
	s.failed.Add(1)
	s.recordFailure(path, kind, err)
}

// Fill copies the counters into a report.
func (s *Stats) Fill(result *models.MirrorResult) {
	result.DirectoriesListed = s.dirsListed.Load()
	result.DirectoriesFailed = s.dirsFailed.Load()
	result.FilesDownloaded = s.downloaded.Load()
	result.FilesResumed = s.resumed.Load()
	result.FilesSkipped = s.skipped.Load()
	result.FilesUnresolvable = s.unresolvable.Load()
	result.FilesFiltered = s.filtered.Load()
	result.FilesFailed = s.failed.Load()
	result.SizeMismatches = s.mismatches.Load()
	result.BytesTransferred = s.bytes.Load()
	result.TransferredHuman = utils.FormatBytes(result.BytesTransferred)

	s.mu.Lock()
	defer s.mu.Unlock()
	result.Failures = append([]models.FailureRecord(nil), s.failures...)
}
