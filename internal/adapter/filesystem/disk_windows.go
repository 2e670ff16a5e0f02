//go:build windows
// +build windows

package filesystem

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/oceanroute/chartfetch/internal/port"
)

var (
	kernel32         = syscall.NewLazyDLL("kernel32.dll")
	getDiskFreeSpace = kernel32.NewProc("GetDiskFreeSpaceExW")
)

// DiskUsage returns disk usage for the chart storage root
func (m *Manager) DiskUsage() (*port.DiskUsage, error) {
	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64

	pathPtr, err := syscall.UTF16PtrFromString(m.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to convert path: %w", err)
	}

	ret, _, err := getDiskFreeSpace.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		uintptr(unsafe.Pointer(&totalNumberOfBytes)),
		uintptr(unsafe.Pointer(&totalNumberOfFreeBytes)),
	)

	if ret == 0 {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	used := totalNumberOfBytes - totalNumberOfFreeBytes

	return &port.DiskUsage{
		Total:   totalNumberOfBytes,
		Used:    used,
		Free:    totalNumberOfFreeBytes,
		UsedPct: float64(used) / float64(totalNumberOfBytes) * 100,
	}, nil
}
