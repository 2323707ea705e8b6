//go:build unix

package scanner

import (
	"os"
	"syscall"
)

// fileKeyOf extracts the device and inode pair identifying a
// directory regardless of the path it was reached by.
func fileKeyOf(info os.FileInfo) (fileKey, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fileKey{}, false
	}
	return fileKey{dev: uint64(stat.Dev), ino: uint64(stat.Ino)}, true
}
