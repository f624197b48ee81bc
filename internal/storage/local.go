package storage

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/digitalservices/queue-service/internal/queue"
)

// LocalStorage implements Storage interface using local filesystem
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a new local filesystem storage. baseDir is only
// used to compute relative paths for result summaries.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

// WriteSideFile writes content to <folderPath>/additional_data.txt
func (s *LocalStorage) WriteSideFile(ctx context.Context, folderPath string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(folderPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", folderPath, err)
	}

	fullPath := filepath.Join(folderPath, queue.SideFileName)
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write file %s: %w", fullPath, err)
	}

	return fullPath, nil
}

// ReadSideFile reads a side file by its full path
func (s *LocalStorage) ReadSideFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return content, nil
}

// ClearFiles removes the regular files directly inside dir. A missing
// directory is not an error.
func (s *LocalStorage) ClearFiles(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to delete file %s: %w", path, err)
		}
		removed++
	}

	return removed, nil
}

// Summarize walks dir and reports its size and top-level file count
func (s *LocalStorage) Summarize(ctx context.Context, dir string) (*DirSummary, error) {
	stat, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	summary := &DirSummary{RelativePath: s.RelativePath(dir)}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		summary.SizeBytes += info.Size()
		if filepath.Dir(path) == filepath.Clean(dir) {
			summary.FileCount++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	summary.Size = ReadableSize(summary.SizeBytes)
	return summary, nil
}

// RelativePath strips the storage base dir from path
func (s *LocalStorage) RelativePath(path string) string {
	if s.baseDir == "" {
		return path
	}
	return strings.ReplaceAll(path, s.baseDir, "")
}

// ReadableSize formats a byte count with at most two decimals, e.g. "1.5 KB"
func ReadableSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case bytes >= gb:
		return formatUnit(float64(bytes)/gb, "GB")
	case bytes >= mb:
		return formatUnit(float64(bytes)/mb, "MB")
	case bytes >= kb:
		return formatUnit(float64(bytes)/kb, "KB")
	case bytes > 0:
		return strconv.FormatInt(bytes, 10) + " B"
	default:
		return "0 B"
	}
}

func formatUnit(v float64, unit string) string {
	rounded := math.Round(v*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + unit
}
