package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/config"
	"github.com/vertextoedge/dlhelper/internal/service/downloader"
)

func TestSizeOf(t *testing.T) {
	tests := []struct {
		downloaded int64
		total      int64
		want       string
	}{
		{downloaded: 1024, total: -1, want: "1.0 KiB"},
		{downloaded: 512, total: 2048, want: "512 B / 2.0 KiB"},
	}

	for _, tt := range tests {
		if got := sizeOf(tt.downloaded, tt.total); got != tt.want {
			t.Errorf("sizeOf(%d, %d) = %q, want %q", tt.downloaded, tt.total, got, tt.want)
		}
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://example.com/files/archive.tar.gz", want: "archive.tar.gz"},
		{url: "https://example.com/", want: "example.com.html"},
	}

	for _, tt := range tests {
		if got := keyFor(tt.url); got != tt.want {
			t.Errorf("keyFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSessionOptions(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Download.DestDir = t.TempDir()
	cfg.Download.FileName = "out.bin"
	cfg.Retry.Enabled = true

	s, err := downloader.New("http://example.com/a", cfg.Download.DestDir, sessionOptions(cfg, zap.NewNop())...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.State() != "IDLE" {
		t.Errorf("State() = %s, want IDLE", s.State())
	}
}
