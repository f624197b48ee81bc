package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a side file does not exist
var ErrNotFound = errors.New("file not found")

// DirSummary describes a results directory
type DirSummary struct {
	// RelativePath is the directory path with the storage base dir removed
	RelativePath string `json:"relativePath"`
	// SizeBytes counts every file below the directory
	SizeBytes int64 `json:"sizeBytes"`
	// Size is SizeBytes in human readable form
	Size string `json:"size"`
	// FileCount counts only the files directly inside the directory
	FileCount int `json:"fileCount"`
}

// Storage defines the file operations the queue needs.
// Paths are the absolute folder paths sent by callers, not keys.
type Storage interface {
	// WriteSideFile writes the additional data file inside folderPath and
	// returns the full path written
	WriteSideFile(ctx context.Context, folderPath string, content []byte) (string, error)

	// ReadSideFile reads a side file by its full path
	ReadSideFile(ctx context.Context, path string) ([]byte, error)

	// ClearFiles removes the regular files directly inside dir and returns
	// how many were removed
	ClearFiles(ctx context.Context, dir string) (int, error)

	// Summarize walks dir and reports its size and file count
	Summarize(ctx context.Context, dir string) (*DirSummary, error)
}
