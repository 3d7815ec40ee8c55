package pipe

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
)

func TestZstdFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.zst")
	payload := bytes.Repeat([]byte("dlhelper "), 4096)

	z, err := NewZstdFile(path, zstd.SpeedFastest)
	if err != nil {
		t.Fatalf("NewZstdFile() err = %v", err)
	}
	for i := 0; i < len(payload); i += 1000 {
		end := min(i+1000, len(payload))
		if _, err := z.Write(payload[i:end]); err != nil {
			t.Fatalf("Write() err = %v", err)
		}
	}
	if err := z.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}
	if z.Path() != path {
		t.Errorf("Path() = %q, want %q", z.Path(), path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress err = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestMirror_Commit(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()

	m, err := NewMirror(ctx, bucket, "downloads/file.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("NewMirror() err = %v", err)
	}
	m.Write([]byte("hello "))
	m.Write([]byte("mirror"))
	if err := m.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}

	got, err := bucket.ReadAll(ctx, "downloads/file.bin")
	if err != nil {
		t.Fatalf("ReadAll() err = %v", err)
	}
	if string(got) != "hello mirror" {
		t.Errorf("object = %q, want %q", got, "hello mirror")
	}

	attrs, err := bucket.Attributes(ctx, "downloads/file.bin")
	if err != nil {
		t.Fatal(err)
	}
	if attrs.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", attrs.ContentType)
	}
}

func TestMirror_Abort(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatal(err)
	}
	defer bucket.Close()

	m, err := NewMirror(ctx, bucket, "partial.bin", "")
	if err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("partial"))
	m.Abort()

	exists, err := bucket.Exists(ctx, "partial.bin")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("aborted upload must not create the object")
	}
}

func TestOpenMirror_FileBucket(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := OpenMirror(ctx, "file://"+filepath.ToSlash(dir), "copy.txt", "")
	if err != nil {
		t.Fatalf("OpenMirror() err = %v", err)
	}
	m.Write([]byte("on disk"))
	if err := m.Close(); err != nil {
		t.Fatalf("Close() err = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "copy.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "on disk" {
		t.Errorf("file = %q", got)
	}
}
