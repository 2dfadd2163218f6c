// +build !linux

package segment

import "os"

func preallocate(fp *os.File, size int64) error {
	return fp.Truncate(size)
}

func deviceBlockSize(path string) int64 {
	return fallbackBlockSize
}
