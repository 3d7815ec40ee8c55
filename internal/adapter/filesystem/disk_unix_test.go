//go:build !windows

package filesystem

import "testing"

func TestManager_DiskUsage(t *testing.T) {
	usage, err := NewManager().DiskUsage(t.TempDir())
	if err != nil {
		t.Fatalf("DiskUsage() err = %v", err)
	}
	if usage.Total == 0 || usage.Free > usage.Total {
		t.Errorf("DiskUsage() = %+v", usage)
	}
}
