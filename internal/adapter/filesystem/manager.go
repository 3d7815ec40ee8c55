package filesystem

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/vertextoedge/dlhelper/internal/port"
)

// DefaultBufferSize is the write buffer of a sink
const DefaultBufferSize = 64 * 1024

// Manager handles local filesystem operations
type Manager struct {
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager() *Manager {
	return NewManagerWithBufferSize(DefaultBufferSize)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Manager{bufferSize: bufferSize}
}

// CheckDir verifies dir is an existing writable directory
func (m *Manager) CheckDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("destination folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination folder %s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".dlhelper-probe-*")
	if err != nil {
		return fmt.Errorf("destination folder %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// Create opens path for writing, truncating existing content
func (m *Manager) Create(path string) (port.Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return m.newSink(f, path), nil
}

// Append opens path in append mode, creating it if missing
func (m *Manager) Append(path string) (port.Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for resume: %w", err)
	}
	return m.newSink(f, path), nil
}

// Exists checks if a file exists
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns the size of a file
func (m *Manager) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file
func (m *Manager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (m *Manager) newSink(f *os.File, path string) *fileSink {
	return &fileSink{
		f:    f,
		w:    bufio.NewWriterSize(f, m.bufferSize),
		path: path,
	}
}

// fileSink is a buffered file writer whose Close is idempotent
type fileSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	closed   bool
	closeErr error
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	return s.w.Write(p)
}

func (s *fileSink) Path() string {
	return s.path
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		s.f.Close()
		s.closeErr = fmt.Errorf("failed to flush file: %w", err)
		return s.closeErr
	}
	if err := s.f.Close(); err != nil {
		s.closeErr = fmt.Errorf("failed to close file: %w", err)
	}
	return s.closeErr
}
