package storage

import (
	"io/fs"
	"path/filepath"
	"time"
)

// DirUsage describes the on-disk footprint of a store directory.
type DirUsage struct {
	// Files maps the name of each regular file directly inside the directory to its size.
	Files map[string]int64
	// Total is the size of every regular file under the directory, recursively.
	Total int64
	// Modified is the latest modification time of any file, or of the directory itself if empty.
	Modified time.Time
}

// Usage walks dir and sums its file sizes. Entries that vanish during the walk are skipped.
func Usage(dir string) (*DirUsage, error) {
	dir = filepath.Clean(dir)
	u := &DirUsage{Files: make(map[string]int64)}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && IsNotExist(err) {
				return nil
			}
			return err
		}
		info, err := d.Info()
		if err != nil {
			if IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.ModTime().After(u.Modified) && (path == dir || info.Mode().IsRegular()) {
			u.Modified = info.ModTime()
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		u.Total += info.Size()
		if filepath.Dir(path) == dir {
			u.Files[d.Name()] = info.Size()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}
