//go:build !unix

package scanner

import (
	"os"
)

// fileKeyOf has no device/inode identity to offer off unix, which
// disables symlink cycle detection there.
func fileKeyOf(info os.FileInfo) (fileKey, bool) {
	return fileKey{}, false
}
