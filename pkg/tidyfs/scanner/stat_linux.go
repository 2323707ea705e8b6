//go:build linux

package scanner

import (
	"os"
	"time"
)

// getCreateTime returns the creation time of a file.
// Linux does not reliably expose birth time through syscall.Stat_t;
// statx() can on 4.11+ with ext4/xfs/btrfs, but needs raw syscall
// handling. Fall back to modification time.
func getCreateTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
