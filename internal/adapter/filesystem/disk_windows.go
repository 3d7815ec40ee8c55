//go:build windows
// +build windows

package filesystem

import (
	"errors"

	"github.com/vertextoedge/dlhelper/internal/port"
)

// DiskUsage is not implemented on windows
func (m *Manager) DiskUsage(dir string) (*port.DiskUsage, error) {
	return nil, errors.ErrUnsupported
}
