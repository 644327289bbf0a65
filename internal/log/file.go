// Package log provides configurable logging for the YDL broker and client.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileHandler writes logs to a file, rotating by size and pruning old
// backups by count and age. It backs Config.Mode == "file", wired up via
// the serve command's --log-file flag.
type FileHandler struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64 // bytes
	maxAge     int   // days
	maxBackups int
	size       int64
	format     string
	level      slog.Level
	inner      slog.Handler
}

// NewFileHandler opens (or creates) cfg.FilePath and prepares rotation.
func NewFileHandler(cfg *Config, level slog.Level) (*FileHandler, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
	if maxSize < 1024 {
		maxSize = 1024 // a broker under test rotates in a few KB, not 100MB
	}

	h := &FileHandler{
		file:       file,
		path:       cfg.FilePath,
		maxSize:    maxSize,
		maxAge:     cfg.MaxAgeDays,
		maxBackups: cfg.MaxBackups,
		size:       info.Size(),
		format:     cfg.Format,
		level:      level,
	}
	h.inner = newFormatHandler(file, h.format, level)
	return h, nil
}

func newFormatHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Enabled reports whether the handler handles records at the given level.
func (h *FileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle rotates the file first if it's grown past maxSize, then writes
// the record and tracks the new size.
func (h *FileHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size >= h.maxSize {
		if err := h.rotate(); err != nil {
			return err
		}
	}

	before, _ := h.file.Seek(0, io.SeekCurrent)
	err := h.inner.Handle(ctx, r)
	after, _ := h.file.Seek(0, io.SeekCurrent)
	h.size += after - before
	return err
}

func (h *FileHandler) clone(inner slog.Handler) *FileHandler {
	return &FileHandler{
		file:       h.file,
		path:       h.path,
		maxSize:    h.maxSize,
		maxAge:     h.maxAge,
		maxBackups: h.maxBackups,
		size:       h.size,
		format:     h.format,
		level:      h.level,
		inner:      inner,
	}
}

// WithAttrs returns a new handler sharing this one's file and rotation
// state, with attrs folded into the inner formatter.
func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clone(h.inner.WithAttrs(attrs))
}

// WithGroup returns a new handler sharing this one's file and rotation
// state, with name folded into the inner formatter.
func (h *FileHandler) WithGroup(name string) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clone(h.inner.WithGroup(name))
}

// rotate closes the current file, renames it aside with a timestamp, and
// opens a fresh one in its place. Caller holds h.mu.
func (h *FileHandler) rotate() error {
	h.file.Close()

	backupPath := h.path + "." + time.Now().Format("2006-01-02T15-04-05")
	if err := os.Rename(h.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	h.pruneBackups()

	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("create new log file: %w", err)
	}

	h.file = file
	h.size = 0
	h.inner = newFormatHandler(file, h.format, h.level)
	return nil
}

// pruneBackups drops backups beyond maxBackups (oldest first) and any
// remaining backup older than maxAge days. Caller holds h.mu.
func (h *FileHandler) pruneBackups() {
	matches, err := filepath.Glob(h.path + ".*")
	if err != nil {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, _ := os.Stat(matches[i])
		fj, _ := os.Stat(matches[j])
		if fi == nil || fj == nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})

	cutoff := time.Now().AddDate(0, 0, -h.maxAge)
	for i, path := range matches {
		if i >= h.maxBackups {
			os.Remove(path)
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}

// checkRotate forces a rotation check outside the normal Handle path. The
// rotation test calls it after its writes, before asserting on backup files.
func (h *FileHandler) checkRotate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size >= h.maxSize {
		h.rotate()
	}
}

// Close closes the underlying file.
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}
