// Package applog holds the debug log file that operators read top-down to
// see the latest dispatcher activity first.
package applog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Separator is written after every entry.
const Separator = "--------------------------------"

// FileLog is an io.Writer that prepends each write to a plaintext file, so
// the newest entry is always first. Writes are serialized by a mutex; the
// whole file is rewritten on every entry.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog returns a FileLog writing to path, creating its directory.
func NewFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &FileLog{path: path}, nil
}

// Path returns the file being written.
func (f *FileLog) Path() string {
	return f.path
}

// Write implements io.Writer.
func (f *FileLog) Write(p []byte) (int, error) {
	entry := bytes.TrimRight(p, "\n")

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := os.ReadFile(f.path)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read log file: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(entry) + len(Separator) + len(existing) + 2)
	buf.Write(entry)
	buf.WriteByte('\n')
	buf.WriteString(Separator)
	buf.WriteByte('\n')
	buf.Write(existing)

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return 0, fmt.Errorf("failed to write log file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return 0, fmt.Errorf("failed to replace log file: %w", err)
	}

	return len(p), nil
}

// Writer wraps the file in a no-color console writer so that entries read as
// plain text lines.
func (f *FileLog) Writer() io.Writer {
	return zerolog.ConsoleWriter{Out: f, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
}

// Options configures New.
type Options struct {
	Level   string
	JSON    bool
	NoColor bool
	// File enables the newest-first debug log when set.
	File    string
	Service string
}

// New builds the process logger. Output goes to stdout and, when opts.File is
// set, to a FileLog as well.
func New(opts Options) (*zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if !opts.JSON {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: opts.NoColor}
	}

	if opts.File != "" {
		fileLog, err := NewFileLog(opts.File)
		if err != nil {
			return nil, err
		}
		output = zerolog.MultiLevelWriter(output, fileLog.Writer())
	}

	ctx := zerolog.New(output).Level(level).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	logger := ctx.Logger()
	return &logger, nil
}
