// Package pipe provides auxiliary writers a download can be fanned out to.
package pipe

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ZstdFile compresses everything written to it into a file
type ZstdFile struct {
	f   *os.File
	enc *zstd.Encoder
}

// NewZstdFile creates path and returns a compressing writer for it
func NewZstdFile(path string, level zstd.EncoderLevel) (*ZstdFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd file: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	return &ZstdFile{f: f, enc: enc}, nil
}

// Write compresses p
func (z *ZstdFile) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

// Path returns the compressed file path
func (z *ZstdFile) Path() string {
	return z.f.Name()
}

// Close finishes the zstd frame and closes the file
func (z *ZstdFile) Close() error {
	encErr := z.enc.Close()
	fileErr := z.f.Close()
	if encErr != nil {
		return fmt.Errorf("close zstd encoder: %w", encErr)
	}
	return fileErr
}
