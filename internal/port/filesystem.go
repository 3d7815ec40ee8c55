package port

import (
	"io"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// Sink is an open destination file
type Sink interface {
	io.Writer

	// Path returns the file path the sink writes to
	Path() string

	// Close flushes buffered data and closes the file. Calling it more than
	// once returns nil.
	Close() error
}

// FileSystem defines the interface for filesystem operations
type FileSystem interface {
	// CheckDir verifies that dir exists, is a directory and is writable
	CheckDir(dir string) error

	// Create opens path for writing, truncating any existing content
	Create(path string) (Sink, error)

	// Append opens path for writing at its end, creating it if missing
	Append(path string) (Sink, error)

	// Exists checks if a file exists
	Exists(path string) bool

	// Size returns the size of a file
	Size(path string) (int64, error)

	// Remove deletes a file; a missing file is not an error
	Remove(path string) error

	// DiskUsage returns usage statistics for the volume holding dir
	DiskUsage(dir string) (*DiskUsage, error)
}
