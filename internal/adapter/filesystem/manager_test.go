package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManager_CreateAndAppend(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerWithBufferSize(4)
	path := filepath.Join(dir, "file.bin")

	sink, err := m.Create(path)
	if err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if sink.Path() != path {
		t.Errorf("Path() = %q, want %q", sink.Path(), path)
	}
	if _, err := sink.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write() err = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}

	sink, err = m.Append(path)
	if err != nil {
		t.Fatalf("Append() err = %v", err)
	}
	sink.Write([]byte("world"))
	sink.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "hello world" {
		t.Errorf("content = %q, want %q", data, "hello world")
	}

	size, err := m.Size(path)
	if err != nil || size != 11 {
		t.Errorf("Size() = %d, %v; want 11", size, err)
	}

	sink, _ = m.Create(path)
	sink.Close()
	if size, _ := m.Size(path); size != 0 {
		t.Errorf("Create must truncate, size = %d", size)
	}
}

func TestSink_CloseOnce(t *testing.T) {
	m := NewManager()
	sink, err := m.Create(filepath.Join(t.TempDir(), "x"))
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("first Close() err = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close() err = %v, want nil", err)
	}
	if _, err := sink.Write([]byte("late")); err == nil {
		t.Error("Write() after Close must fail")
	}
}

func TestManager_ExistsRemove(t *testing.T) {
	m := NewManager()
	path := filepath.Join(t.TempDir(), "gone")

	if m.Exists(path) {
		t.Error("Exists() on missing file")
	}
	if err := m.Remove(path); err != nil {
		t.Errorf("Remove() on missing file err = %v", err)
	}

	os.WriteFile(path, []byte("x"), 0o644)
	if !m.Exists(path) {
		t.Error("Exists() = false for written file")
	}
	if err := m.Remove(path); err != nil || m.Exists(path) {
		t.Errorf("Remove() err = %v, exists = %v", err, m.Exists(path))
	}
}

func TestManager_CheckDir(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"writable directory", dir, false},
		{"missing directory", filepath.Join(dir, "missing"), true},
		{"regular file", func() string {
			p := filepath.Join(dir, "plain")
			os.WriteFile(p, nil, 0o644)
			return p
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.CheckDir(tt.dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckDir() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "plain" {
			t.Errorf("probe file left behind: %s", e.Name())
		}
	}
}
