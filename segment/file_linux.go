// +build linux

package segment

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves the full segment extent so later block writes cannot
// fail with ENOSPC mid-journal.
func preallocate(fp *os.File, size int64) error {
	err := unix.Fallocate(int(fp.Fd()), 0, 0, size)
	if err == unix.EOPNOTSUPP || err == unix.ENOSYS {
		return fp.Truncate(size)
	}
	return err
}

// deviceBlockSize discovers the filesystem block size under path.
func deviceBlockSize(path string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return fallbackBlockSize
	}
	if st.Bsize <= 0 {
		return fallbackBlockSize
	}
	return int64(st.Bsize)
}
