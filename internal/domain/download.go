package domain

import "time"

// UnknownSize marks a total size the server did not announce
const UnknownSize int64 = -1

// ResumeState is a snapshot that lets a new session re-attach to a partially
// written file.
type ResumeState struct {
	Downloaded int64
	FilePath   string
	FileName   string
	Total      int64
}

// Stats represents the current progress of a download
type Stats struct {
	// Total is the expected size in bytes, UnknownSize if not announced
	Total int64

	// Name is the destination file name
	Name string

	Downloaded int64

	// Progress is the completion percentage, 0 when Total is unknown
	Progress float64

	// Speed is the number of bytes received during the last sampling window
	Speed int64
}

// TotalSize is the result of a HEAD-style size probe
type TotalSize struct {
	Name  string
	Total int64
}

// DownloadResult describes a finished stream
type DownloadResult struct {
	FileName       string
	FilePath       string
	TotalSize      int64
	DownloadedSize int64
	OnDiskSize     int64
	Incomplete     bool
}

// JournalEntry is a persisted ResumeState keyed by source URL and
// destination directory
type JournalEntry struct {
	URL       string
	DestDir   string
	State     ResumeState
	UpdatedAt time.Time
}
