package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/atlasdatatech/mvt-server/internal/applog"
)

// Disk is the filesystem-backed CacheFacade, grounded on the original
// source's cache/disk.rs: tiles live at
// {root}/{name}/{z}/{x}/{y}.pbf, and expiry is a plain mtime check.
type Disk struct {
	root string
}

func newDisk(root string) *Disk {
	return &Disk{root: root}
}

func (d *Disk) path(name string, z, x, y int) string {
	return filepath.Join(d.root, name, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".pbf")
}

func (d *Disk) Get(name string, z, x, y int, maxAge time.Duration) ([]byte, bool, error) {
	path := d.path(name, z, x, y)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	if maxAge > 0 && time.Since(info.ModTime()) > maxAge {
		_ = os.Remove(path)
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return data, true, nil
}

func (d *Disk) Put(name string, z, x, y int, data []byte, _ time.Duration) error {
	path := d.path(name, z, x, y)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (d *Disk) DeleteLayer(name string) error {
	dir := filepath.Join(d.root, name)
	if err := os.RemoveAll(dir); err != nil {
		applog.Warnf("cache: removing %s: %v", dir, err)
		return err
	}
	return nil
}

func (d *Disk) Exists(name string, z, x, y int) (bool, error) {
	_, err := os.Stat(d.path(name, z, x, y))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteAll purges every name in layerNames, continuing past individual
// failures and returning the first error seen, matching the original
// source's delete_cache(catalog) sweep over every configured layer.
func (d *Disk) DeleteAll(layerNames []string) error {
	var first error
	for _, name := range layerNames {
		if err := d.DeleteLayer(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Root returns the filesystem cache's root directory.
func (d *Disk) Root() string { return d.root }
