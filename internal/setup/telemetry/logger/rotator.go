// Package logger provides log file writers for the telemetry manager.
package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Rotator is a log file writer that keeps only the newest maxLines lines on disk.
// The file grows to twice the limit before it is compacted back down.
type Rotator struct {
	mu   sync.Mutex
	path string
	file *os.File
	ring *lineRing
}

// Open opens or creates the log file at path.
func Open(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &Rotator{
		path: path,
		file: file,
		ring: newLineRing(maxLines),
	}, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			r.ring.push(line)
		}
	}

	if r.ring.sinceCompact >= r.ring.capacity()*2 {
		if err := r.compact(); err != nil {
			return n, fmt.Errorf("failed to compact log file: %w", err)
		}
	}

	return n, nil
}

// Sync flushes the file.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Sync()
}

// Close closes the file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Close()
}

// compact replaces the file with the lines held in the ring.
func (r *Rotator) compact() error {
	temp, err := os.CreateTemp(filepath.Dir(r.path), "compact-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(r.ring.snapshot(), "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	r.file.Close()

	if err := os.Rename(tempPath, r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	r.file = file
	r.ring.sinceCompact = r.ring.count

	return nil
}
