// Package cache implements the tile server's two-tier CacheFacade: a
// filesystem-backed store and a Redis-backed key/value store, exposed
// through one interface so callers never branch on which backend is
// active. The selection happens once, in New, matching the original
// source's CacheWrapper::initialize_cache (prefer Redis if configured
// and reachable, else fall back to disk).
package cache

import "time"

// Facade is the uniform capability TileService talks to. Exactly two
// implementations exist (Disk, Redis); callers hold this interface, not
// a concrete type, so the "which backend" decision lives only in New.
type Facade interface {
	// Get returns a tile's bytes. ok is false on a miss (including an
	// expired entry, which Get also evicts). maxAge of zero means
	// "never expires".
	Get(name string, z, x, y int, maxAge time.Duration) (data []byte, ok bool, err error)

	// Put stores a tile's bytes under (name,z,x,y) with the given
	// max age (zero means "never expires").
	Put(name string, z, x, y int, data []byte, maxAge time.Duration) error

	// DeleteLayer removes every cached tile for the given composite
	// layer name.
	DeleteLayer(name string) error

	// DeleteAll purges every cached tile for each name in layerNames,
	// the startup-time "delete_cache_on_start" sweep over the catalog.
	// It keeps going past a single name's failure, collecting and
	// returning the first error encountered.
	DeleteAll(layerNames []string) error

	// Exists reports whether a tile is cached, ignoring max age.
	Exists(name string, z, x, y int) (bool, error)

	// Root returns the filesystem cache's root directory, or "" for a
	// backend with no filesystem root (Redis).
	Root() string
}

// Options configures backend selection.
type Options struct {
	// FilesystemRoot is the Disk backend's cache root.
	FilesystemRoot string
	// RedisAddr, if non-empty, selects the Redis backend.
	RedisAddr string
	RedisDB   int
}

// New selects a backend per Options: Redis if RedisAddr is set and the
// connection + startup purge succeed, otherwise the filesystem backend.
// A Redis failure is logged, not fatal -- the server still starts, cold.
func New(opts Options, startupPurgeNames []string) (Facade, error) {
	if opts.RedisAddr != "" {
		r, err := newRedis(opts.RedisAddr, opts.RedisDB)
		if err == nil {
			err = r.DeleteAll(startupPurgeNames)
		}
		if err == nil {
			return r, nil
		}
		logFallback(err)
	}

	d := newDisk(opts.FilesystemRoot)
	_ = d.DeleteAll(startupPurgeNames)
	return d, nil
}
