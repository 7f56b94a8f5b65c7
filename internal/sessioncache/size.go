package sessioncache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SizeTracker measures cache entries on disk.
type SizeTracker struct{}

// EntrySize returns the byte size of the files under one session directory.
func (SizeTracker) EntrySize(dir string) (int64, error) {
	usage, err := measure(dir)
	if err != nil {
		return 0, err
	}
	return usage.size, nil
}

// TotalSize returns the byte size of every session directory under root.
// A missing root counts as empty.
func (t SizeTracker) TotalSize(root string) (int64, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if _, ok := parseDirName(entry.Name()); !ok || !entry.IsDir() {
			continue
		}
		size, err := t.EntrySize(filepath.Join(root, entry.Name()))
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}

type usage struct {
	size   int64
	access time.Time
}

// measure sums file sizes under dir and reports the latest mtime or atime seen
// on any file. An empty directory falls back to the directory's own mtime.
func measure(dir string) (usage, error) {
	var u usage
	files := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		u.size += info.Size()
		if t := accessTime(path, info); t.After(u.access) {
			u.access = t
		}
		return nil
	})
	if err != nil {
		return usage{}, err
	}
	if files == 0 {
		info, err := os.Stat(dir)
		if err != nil {
			return usage{}, err
		}
		u.access = info.ModTime()
	}
	return u, nil
}
