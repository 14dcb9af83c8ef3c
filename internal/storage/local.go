package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"alistmirror/internal/models"
	"alistmirror/pkg/utils"
)

type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination %s: %w", root, err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

// resolve maps a relative name under the root and refuses anything that
// would land outside it.
func (s *LocalStore) resolve(name string) (string, error) {
	full := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(name)))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes destination root %s", name, s.root)
	}
	return full, nil
}

func (s *LocalStore) EnsureDir(_ context.Context, dir string) error {
	full, err := s.resolve(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", full, err)
	}
	return nil
}

func (s *LocalStore) Size(_ context.Context, name string) (int64, bool, error) {
	full, err := s.resolve(name)
	if err != nil {
		return 0, false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to stat %s: %w", full, err)
	}
	if info.IsDir() {
		return 0, false, fmt.Errorf("%s is a directory", full)
	}
	return info.Size(), true, nil
}

func (s *LocalStore) Create(_ context.Context, name string, offset int64) (io.WriteCloser, error) {
	full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories for %s: %w", full, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", full, err)
	}

	if offset > 0 {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", full, err)
		}
		if info.Size() != offset {
			file.Close()
			return nil, fmt.Errorf("cannot append to %s at offset %d: file has %d bytes", full, offset, info.Size())
		}
	}
	return file, nil
}

func (s *LocalStore) SupportsAppend() bool { return true }

func (s *LocalStore) Stat(_ context.Context) (*models.StoreInfo, error) {
	var count, total int64
	var lastModified time.Time

	err := filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		total += info.Size()
		if info.ModTime().After(lastModified) {
			lastModified = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", s.root, err)
	}

	return &models.StoreInfo{
		Destination:    s.root,
		Kind:           "local",
		ObjectCount:    count,
		TotalSizeBytes: total,
		TotalSizeHuman: utils.FormatBytes(total),
		LastModified:   lastModified,
	}, nil
}

func (s *LocalStore) Describe() string {
	return s.root
}
