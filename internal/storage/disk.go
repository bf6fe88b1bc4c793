package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/kiku/internal/config"
)

// PathUsage is the on-disk footprint of one storage location.
type PathUsage struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Exists bool   `json:"exists"`
}

// Usage is the footprint of all storage locations.
type Usage struct {
	Paths      []PathUsage `json:"paths"`
	TotalBytes int64       `json:"total_bytes"`
}

// Location names a path whose size should be reported.
type Location struct {
	Name string
	Path string
	// Siblings are files next to Path that belong to it, such as a SQLite
	// database's -wal and -shm files.
	Siblings []string
}

// SQLiteLocation returns a location covering a database file and its WAL files.
func SQLiteLocation(name, dbPath string) Location {
	return Location{Name: name, Path: dbPath, Siblings: []string{dbPath + "-wal", dbPath + "-shm"}}
}

// ConfiguredLocations lists the on-disk stores cfg uses.
func ConfiguredLocations(cfg *config.Config) []Location {
	var locs []Location
	if cfg.Storage.Driver == config.DriverSQLite {
		locs = append(locs, SQLiteLocation("conversations", cfg.Storage.DatabasePath))
	}
	if !cfg.Vector.Local.Disabled {
		locs = append(locs, Location{Name: "local_index", Path: cfg.Vector.Local.Path})
	}
	return locs
}

// MeasureUsage sums the size of each location. Locations with an empty path
// are skipped; missing paths report zero bytes.
func MeasureUsage(locations ...Location) (Usage, error) {
	var u Usage
	for _, loc := range locations {
		if loc.Path == "" {
			continue
		}
		pu := PathUsage{Name: loc.Name, Path: loc.Path}
		for i, p := range append([]string{loc.Path}, loc.Siblings...) {
			n, ok, err := pathSize(p)
			if err != nil {
				return Usage{}, err
			}
			if i == 0 {
				pu.Exists = ok
			}
			pu.Bytes += n
		}
		u.Paths = append(u.Paths, pu)
		u.TotalBytes += pu.Bytes
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; errors during the walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, _, err := pathSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func pathSize(p string) (int64, bool, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !info.IsDir() {
		return info.Size(), true, nil
	}
	n, err := dirSize(p)
	return n, true, err
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
