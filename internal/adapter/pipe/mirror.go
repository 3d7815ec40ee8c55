package pipe

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// Mirror uploads the written stream to an object in a gocloud bucket. The
// object becomes visible on Close; Abort discards it.
type Mirror struct {
	bucket *blob.Bucket
	owned  bool
	key    string
	w      *blob.Writer
	cancel context.CancelFunc
}

// OpenMirror opens the bucket at bucketURL (mem://, file:///dir, ...) and
// starts writing key
func OpenMirror(ctx context.Context, bucketURL, key, contentType string) (*Mirror, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}

	m, err := NewMirror(ctx, bkt, key, contentType)
	if err != nil {
		bkt.Close()
		return nil, err
	}
	m.owned = true
	return m, nil
}

// NewMirror starts writing key in an already open bucket. The bucket stays
// open after Close.
func NewMirror(ctx context.Context, bkt *blob.Bucket, key, contentType string) (*Mirror, error) {
	wctx, cancel := context.WithCancel(ctx)

	var opts *blob.WriterOptions
	if contentType != "" {
		opts = &blob.WriterOptions{ContentType: contentType}
	}

	w, err := bkt.NewWriter(wctx, key, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create writer: %w", err)
	}

	return &Mirror{bucket: bkt, key: key, w: w, cancel: cancel}, nil
}

// Key returns the object key
func (m *Mirror) Key() string {
	return m.key
}

// Write buffers p for upload
func (m *Mirror) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

// Close commits the object
func (m *Mirror) Close() error {
	err := m.w.Close()
	m.cancel()
	if m.owned {
		if cerr := m.bucket.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Abort discards the upload
func (m *Mirror) Abort() {
	m.cancel()
	m.w.Close()
	if m.owned {
		m.bucket.Close()
	}
}
