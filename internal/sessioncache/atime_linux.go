//go:build linux

package sessioncache

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// accessTime returns the later of the file's mtime and atime.
func accessTime(path string, info fs.FileInfo) time.Time {
	latest := info.ModTime()
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return latest
	}
	atime := time.Unix(st.Atim.Unix())
	if atime.After(latest) {
		return atime
	}
	return latest
}
